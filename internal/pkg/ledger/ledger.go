package ledger

import (
	"context"
	"errors"

	"github.com/JonasBergmann/CompanionDeck/app/models"
	"github.com/JonasBergmann/CompanionDeck/app/repository"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no account exists for the given id.
var ErrNotFound = errors.New("account not found")

// ErrInsufficientCredits is returned when a debit would drive the balance
// below zero. Callers performing post-response debits use DebitForResponse,
// which clamps instead.
var ErrInsufficientCredits = repository.ErrInsufficientCredits

// Service provides atomic read/modify access to an account's credit balance
// and subscription reference. The balance is the single source of truth the
// UI reads; every mutation goes through one of the typed operations below,
// never a generic partial update.
type Service struct {
	accounts repository.AccountRepository
}

// NewService creates a ledger service from an injected account repository.
func NewService(accounts repository.AccountRepository) *Service {
	return &Service{accounts: accounts}
}

// NewServiceFromDB creates a ledger service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(repository.NewAccountRepository(db))
}

// Read loads the account record.
func (s *Service) Read(ctx context.Context, accountID uint) (*models.User, error) {
	_ = ctx
	user, err := s.accounts.GetByID(accountID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return user, nil
}

// ApplyCredit adjusts the balance by delta (negative for debits) and, when
// newSubscriptionID is non-empty, overwrites the subscription reference in the
// same atomic statement. A debit that would go below zero is rejected with
// ErrInsufficientCredits; crediting never reduces the balance.
func (s *Service) ApplyCredit(ctx context.Context, accountID uint, delta int64, newSubscriptionID string) (*models.User, error) {
	_ = ctx
	user, err := s.accounts.AddCredits(accountID, delta, newSubscriptionID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return user, nil
}

// ClearSubscription drops the subscription reference, leaving the balance
// untouched.
func (s *Service) ClearSubscription(ctx context.Context, accountID uint) (*models.User, error) {
	_ = ctx
	user, err := s.accounts.ClearSubscription(accountID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return user, nil
}

// CompareAndClearSubscription clears the subscription reference only if it
// still equals expectedRef at the time of the update. This is the ordering
// guard for deletion events racing a newer checkout: a stale deletion must
// not clear a reference a later checkout already replaced.
func (s *Service) CompareAndClearSubscription(ctx context.Context, accountID uint, expectedRef string) (*models.User, bool, error) {
	_ = ctx
	user, cleared, err := s.accounts.CompareAndClearSubscription(accountID, expectedRef)
	if err != nil {
		return nil, false, mapNotFound(err)
	}
	return user, cleared, nil
}

// SetStripeCustomerID links the account to the payment provider's customer
// record so later payment events can be resolved back to the account.
func (s *Service) SetStripeCustomerID(ctx context.Context, accountID uint, customerID string) error {
	_ = ctx
	return s.accounts.SetStripeCustomerID(accountID, customerID)
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
