package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonasBergmann/CompanionDeck/app/models"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/ledger"
)

const testGrace = time.Millisecond

func TestFallbackSkipsWhenWebhookAlreadyCredited(t *testing.T) {
	accounts := newFakeAccounts()
	// Balance already above the pre-checkout snapshot: webhook landed first.
	user := accounts.add(models.User{Credits: models.FreePlanCredits + ProPlanCredits, SubscriptionID: "sub_1"})
	events := newFakeEvents()
	f := NewFallback(ledger.NewService(accounts), events, nil, testGrace)

	after, credited, err := f.ReconcileAfterCheckout(context.Background(), user.ID, "cs_1", models.FreePlanCredits)
	require.NoError(t, err)
	assert.False(t, credited)
	assert.Equal(t, models.FreePlanCredits+ProPlanCredits, after.Credits)
	assert.False(t, events.has(models.BillingProviderStripe, "session:cs_1"))
}

func TestFallbackCreditsWhenWebhookMissing(t *testing.T) {
	accounts := newFakeAccounts()
	user := accounts.add(models.User{Credits: models.FreePlanCredits})
	events := newFakeEvents()
	sessions := &stubSessions{subscriptions: map[string]string{"cs_2": "sub_2"}}
	f := NewFallback(ledger.NewService(accounts), events, sessions, testGrace)

	after, credited, err := f.ReconcileAfterCheckout(context.Background(), user.ID, "cs_2", models.FreePlanCredits)
	require.NoError(t, err)
	assert.True(t, credited)
	assert.Equal(t, models.FreePlanCredits+ProPlanCredits, after.Credits)
	assert.Equal(t, "sub_2", after.SubscriptionID)
	assert.True(t, events.has(models.BillingProviderStripe, "session:cs_2"))
}

func TestFallbackCreditsAtMostOncePerSession(t *testing.T) {
	accounts := newFakeAccounts()
	user := accounts.add(models.User{Credits: models.FreePlanCredits})
	events := newFakeEvents()
	sessions := &stubSessions{subscriptions: map[string]string{"cs_3": "sub_3"}}
	f := NewFallback(ledger.NewService(accounts), events, sessions, testGrace)

	_, credited, err := f.ReconcileAfterCheckout(context.Background(), user.ID, "cs_3", models.FreePlanCredits)
	require.NoError(t, err)
	assert.True(t, credited)

	// A retry with the same stale snapshot must hit the session marker and
	// leave the balance alone even though credits <= preCheckout is false now.
	after, credited, err := f.ReconcileAfterCheckout(context.Background(), user.ID, "cs_3", models.FreePlanCredits+ProPlanCredits)
	require.NoError(t, err)
	assert.False(t, credited)
	assert.Equal(t, models.FreePlanCredits+ProPlanCredits, after.Credits)
}

func TestFallbackUsesPlaceholderRefWhenSessionLookupFails(t *testing.T) {
	accounts := newFakeAccounts()
	user := accounts.add(models.User{Credits: 0})
	events := newFakeEvents()
	sessions := &stubSessions{err: assert.AnError}
	f := NewFallback(ledger.NewService(accounts), events, sessions, testGrace)

	after, credited, err := f.ReconcileAfterCheckout(context.Background(), user.ID, "cs_4", 0)
	require.NoError(t, err)
	assert.True(t, credited)
	assert.Equal(t, ProPlanCredits, after.Credits)
	assert.Equal(t, "pending:cs_4", after.SubscriptionID)
}

func TestFallbackReleasesMarkerOnApplyFailure(t *testing.T) {
	accounts := newFakeAccounts()
	user := accounts.add(models.User{Credits: models.FreePlanCredits})
	events := newFakeEvents()
	sessions := &stubSessions{subscriptions: map[string]string{"cs_7": "sub_7"}}
	f := NewFallback(ledger.NewService(accounts), events, sessions, testGrace)

	accounts.failErr = errors.New("connection reset")
	_, credited, err := f.ReconcileAfterCheckout(context.Background(), user.ID, "cs_7", models.FreePlanCredits)
	require.Error(t, err)
	assert.False(t, credited)
	// A failed credit must not keep the session claimed.
	assert.False(t, events.has(models.BillingProviderStripe, "session:cs_7"))

	after, credited, err := f.ReconcileAfterCheckout(context.Background(), user.ID, "cs_7", models.FreePlanCredits)
	require.NoError(t, err)
	assert.True(t, credited)
	assert.Equal(t, models.FreePlanCredits+ProPlanCredits, after.Credits)
}

func TestFallbackHonorsContextCancellation(t *testing.T) {
	accounts := newFakeAccounts()
	user := accounts.add(models.User{Credits: 0})
	events := newFakeEvents()
	f := NewFallback(ledger.NewService(accounts), events, nil, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, credited, err := f.ReconcileAfterCheckout(ctx, user.ID, "cs_5", 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, credited)

	after, _ := accounts.GetByID(user.ID)
	assert.Equal(t, int64(0), after.Credits)
}

func TestFallbackAndWebhookTogetherCreditOnce(t *testing.T) {
	accounts := newFakeAccounts()
	user := accounts.add(models.User{Email: "lena@example.com", Credits: models.FreePlanCredits, StripeCustomerID: "cus_1"})
	events := newFakeEvents()
	sessions := &stubSessions{subscriptions: map[string]string{"cs_6": "sub_6"}}
	f := NewFallback(ledger.NewService(accounts), events, sessions, testGrace)
	r := newTestReconciler(accounts, events, nil)

	// Fallback runs first against a stale balance, then the webhook arrives.
	_, credited, err := f.ReconcileAfterCheckout(context.Background(), user.ID, "cs_6", models.FreePlanCredits)
	require.NoError(t, err)
	assert.True(t, credited)

	ev := checkoutEvent("evt_cs6", "cs_6", "cus_1", "", "sub_6", "paid")
	outcome, err := r.ProcessEvent(context.Background(), ev, rawPayload(ev))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	after, _ := accounts.GetByID(user.ID)
	assert.Equal(t, models.FreePlanCredits+ProPlanCredits, after.Credits)
}
