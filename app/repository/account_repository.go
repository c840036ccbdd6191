package repository

import (
	"strings"
	"time"

	"github.com/JonasBergmann/CompanionDeck/app/models"
	"gorm.io/gorm"
)

// accountRepository implements the AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create creates a new account in the database
func (r *accountRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves an account by its email address
func (r *accountRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByStripeCustomerID resolves a provider customer reference to the account.
func (r *accountRepository) GetByStripeCustomerID(customerID string) (*models.User, error) {
	trimmed := strings.TrimSpace(customerID)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user models.User
	err := r.db.Where("stripe_customer_id = ?", trimmed).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update updates an existing account in the database
func (r *accountRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

// UpdateLastLogin stamps the last login time without touching other fields.
func (r *accountRepository) UpdateLastLogin(id uint) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("last_login_at", time.Now()).Error
}

// AddCredits applies the delta in a single guarded UPDATE. The WHERE clause
// rejects any delta that would drive the balance negative, so concurrent
// writers can never produce a negative balance.
func (r *accountRepository) AddCredits(id uint, delta int64, subscriptionID string) (*models.User, error) {
	updates := map[string]interface{}{
		"credits": gorm.Expr("credits + ?", delta),
	}
	if strings.TrimSpace(subscriptionID) != "" {
		updates["subscription_id"] = strings.TrimSpace(subscriptionID)
	}

	tx := r.db.Model(&models.User{}).
		Where("id = ? AND credits + ? >= 0", id, delta).
		Updates(updates)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		// Either the account is missing or the delta would go below zero.
		if _, err := r.GetByID(id); err != nil {
			return nil, err
		}
		return nil, ErrInsufficientCredits
	}
	return r.GetByID(id)
}

// DebitClamped floors the balance at zero instead of failing: a response that
// has already been produced is always charged, at most down to an empty balance.
func (r *accountRepository) DebitClamped(id uint, cost int64) (*models.User, error) {
	tx := r.db.Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("credits", gorm.Expr("GREATEST(credits - ?, 0)", cost))
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.GetByID(id)
}

// ClearSubscription drops the subscription ref unconditionally, balance untouched.
func (r *accountRepository) ClearSubscription(id uint) (*models.User, error) {
	tx := r.db.Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("subscription_id", "")
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.GetByID(id)
}

// CompareAndClearSubscription clears the ref only while it still matches
// expectedRef. A stale deletion event racing a newer checkout therefore loses.
func (r *accountRepository) CompareAndClearSubscription(id uint, expectedRef string) (*models.User, bool, error) {
	tx := r.db.Model(&models.User{}).
		Where("id = ? AND subscription_id = ?", id, expectedRef).
		UpdateColumn("subscription_id", "")
	if tx.Error != nil {
		return nil, false, tx.Error
	}
	cleared := tx.RowsAffected > 0
	user, err := r.GetByID(id)
	if err != nil {
		return nil, false, err
	}
	return user, cleared, nil
}

// SetStripeCustomerID links the account to the provider's customer record.
func (r *accountRepository) SetStripeCustomerID(id uint, customerID string) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("stripe_customer_id", strings.TrimSpace(customerID)).Error
}
