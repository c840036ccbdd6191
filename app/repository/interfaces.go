package repository

import (
	"errors"

	"github.com/JonasBergmann/CompanionDeck/app/models"
	"gorm.io/gorm"
)

// ErrInsufficientCredits is returned when a guarded balance update would drive
// the account's credits below zero.
var ErrInsufficientCredits = errors.New("insufficient credits")

// AccountRepository defines the database operations on user accounts,
// including the atomic single-statement balance updates the ledger relies on.
type AccountRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByStripeCustomerID(customerID string) (*models.User, error)
	Update(user *models.User) error
	UpdateLastLogin(id uint) error

	// AddCredits applies `credits = credits + delta` in one statement, guarded
	// so the result can never go negative. An optional non-empty subscriptionID
	// is written in the same statement.
	AddCredits(id uint, delta int64, subscriptionID string) (*models.User, error)
	// DebitClamped applies `credits = GREATEST(credits - cost, 0)`.
	DebitClamped(id uint, cost int64) (*models.User, error)
	ClearSubscription(id uint) (*models.User, error)
	// CompareAndClearSubscription clears the subscription ref only when it
	// still equals expectedRef. The bool reports whether a clear happened.
	CompareAndClearSubscription(id uint, expectedRef string) (*models.User, bool, error)
	SetStripeCustomerID(id uint, customerID string) error
}

// AssistantRepository defines operations on a user's configured assistants.
type AssistantRepository interface {
	Create(assistant *models.Assistant) error
	CreateBatch(assistants []models.Assistant) error
	GetByID(id uint) (*models.Assistant, error)
	GetByUserID(userID uint) ([]models.Assistant, error)
	Update(assistant *models.Assistant) error
	Delete(id uint) error
	CountByUserID(userID uint) (int64, error)
}

// WebhookEventRepository persists provider webhook deliveries with
// insert-if-not-exists semantics for idempotent processing. Delete releases a
// claimed row again when the work it guarded did not complete.
type WebhookEventRepository interface {
	CreateIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
	Delete(id uint) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Account      AccountRepository
	Assistant    AssistantRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Account:      NewAccountRepository(db),
		Assistant:    NewAssistantRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}
