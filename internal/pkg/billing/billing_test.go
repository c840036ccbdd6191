package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/JonasBergmann/CompanionDeck/app/models"
	"github.com/JonasBergmann/CompanionDeck/app/repository"
)

// In-memory fakes mirroring the SQL repositories' update semantics.

type fakeAccounts struct {
	mu      sync.Mutex
	nextID  uint
	users   map[uint]*models.User
	failErr error // returned once by the next balance update
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{nextID: 1, users: map[uint]*models.User{}}
}

func (f *fakeAccounts) add(u models.User) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = f.nextID
	f.nextID++
	f.users[u.ID] = &u
	return &u
}

func (f *fakeAccounts) copyOf(id uint) *models.User {
	u := *f.users[id]
	return &u
}

func (f *fakeAccounts) Create(user *models.User) error {
	created := f.add(*user)
	user.ID = created.ID
	return nil
}

func (f *fakeAccounts) GetByID(id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return f.copyOf(id), nil
}

func (f *fakeAccounts) GetByEmail(email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if u.Email == email {
			return f.copyOf(id), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAccounts) GetByStripeCustomerID(customerID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if u.StripeCustomerID != "" && u.StripeCustomerID == customerID {
			return f.copyOf(id), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAccounts) Update(user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	u := *user
	f.users[user.ID] = &u
	return nil
}

func (f *fakeAccounts) UpdateLastLogin(id uint) error { return nil }

func (f *fakeAccounts) AddCredits(id uint, delta int64, subscriptionID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failErr; err != nil {
		f.failErr = nil
		return nil, err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if u.Credits+delta < 0 {
		return nil, repository.ErrInsufficientCredits
	}
	u.Credits += delta
	if subscriptionID != "" {
		u.SubscriptionID = subscriptionID
	}
	return f.copyOf(id), nil
}

func (f *fakeAccounts) DebitClamped(id uint, cost int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	u.Credits -= cost
	if u.Credits < 0 {
		u.Credits = 0
	}
	return f.copyOf(id), nil
}

func (f *fakeAccounts) ClearSubscription(id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	u.SubscriptionID = ""
	return f.copyOf(id), nil
}

func (f *fakeAccounts) CompareAndClearSubscription(id uint, expectedRef string) (*models.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, false, gorm.ErrRecordNotFound
	}
	if u.SubscriptionID != expectedRef {
		return f.copyOf(id), false, nil
	}
	u.SubscriptionID = ""
	return f.copyOf(id), true, nil
}

func (f *fakeAccounts) SetStripeCustomerID(id uint, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.StripeCustomerID = customerID
	return nil
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

type fakeEvents struct {
	mu     sync.Mutex
	nextID uint
	byKey  map[string]*models.BillingWebhookEvent
	byID   map[uint]*models.BillingWebhookEvent
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{
		nextID: 1,
		byKey:  map[string]*models.BillingWebhookEvent{},
		byID:   map[uint]*models.BillingWebhookEvent{},
	}
}

func (f *fakeEvents) CreateIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := event.Provider + "|" + event.ProviderEventID
	if existing, ok := f.byKey[key]; ok {
		copied := *existing
		return false, &copied, nil
	}
	stored := *event
	stored.ID = f.nextID
	f.nextID++
	stored.CreatedAt = time.Now()
	f.byKey[key] = &stored
	f.byID[stored.ID] = &stored
	copied := stored
	return true, &copied, nil
}

func (f *fakeEvents) MarkProcessed(id uint, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	stored.ProcessedAt = &now
	stored.ProcessingError = processingError
	return nil
}

func (f *fakeEvents) Delete(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.byKey, stored.Provider+"|"+stored.ProviderEventID)
	delete(f.byID, id)
	return nil
}

func (f *fakeEvents) has(provider, eventID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.byKey[provider+"|"+eventID]
	return ok
}

var _ repository.WebhookEventRepository = (*fakeEvents)(nil)

type stubCustomers struct {
	emails map[string]string
	err    error
}

func (s *stubCustomers) GetCustomer(ctx context.Context, customerID string) (*StripeCustomer, error) {
	if s.err != nil {
		return nil, s.err
	}
	email, ok := s.emails[customerID]
	if !ok {
		return nil, errors.New("no such customer")
	}
	return &StripeCustomer{ID: customerID, Email: email}, nil
}

type stubSessions struct {
	subscriptions map[string]string
	err           error
}

func (s *stubSessions) GetCheckoutSession(ctx context.Context, sessionID string) (*StripeCheckoutSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	sub, ok := s.subscriptions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such session %s", sessionID)
	}
	return &StripeCheckoutSession{ID: sessionID, SubscriptionID: sub, PaymentStatus: "paid"}, nil
}
