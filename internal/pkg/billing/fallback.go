package billing

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/JonasBergmann/CompanionDeck/app/models"
	"github.com/JonasBergmann/CompanionDeck/app/repository"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/ledger"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/metrics"
)

// DefaultGracePeriod is how long the fallback waits after the checkout
// redirect before checking whether the asynchronous webhook already landed.
const DefaultGracePeriod = 2 * time.Second

// SessionLookup retrieves a checkout session from the provider, used to
// recover the subscription reference when the webhook has not arrived yet.
type SessionLookup interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*StripeCheckoutSession, error)
}

// Fallback covers the window between a successful checkout redirect and the
// delivery of the corresponding payment event. It credits only when the
// reconciler demonstrably has not: first by comparing the live balance to the
// pre-checkout snapshot, then through the shared per-session credit marker.
type Fallback struct {
	ledger   *ledger.Service
	events   repository.WebhookEventRepository
	sessions SessionLookup
	grace    time.Duration
}

// NewFallback creates the manual reconciliation fallback. A non-positive
// grace duration selects DefaultGracePeriod.
func NewFallback(ledgerSvc *ledger.Service, events repository.WebhookEventRepository, sessions SessionLookup, grace time.Duration) *Fallback {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Fallback{
		ledger:   ledgerSvc,
		events:   events,
		sessions: sessions,
		grace:    grace,
	}
}

// ReconcileAfterCheckout re-reads the account after the grace period and
// applies the pro plan credit only if the asynchronous path has not. The
// returned bool reports whether this call performed the credit.
func (f *Fallback) ReconcileAfterCheckout(ctx context.Context, accountID uint, sessionID string, preCheckoutCredits int64) (*models.User, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-time.After(f.grace):
	}

	user, err := f.ledger.Read(ctx, accountID)
	if err != nil {
		return nil, false, err
	}
	if user.Credits > preCheckoutCredits {
		// The reconciler got there first; report success without writing.
		return user, false, nil
	}

	created, marker, err := f.events.CreateIfNotExists(&models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: "session:" + sessionID,
		EventType:       sessionCreditEventType,
		PayloadJSON:     fmt.Sprintf(`{"session_id":%q,"source":"fallback"}`, sessionID),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, false, err
	}
	if !created {
		// Credited between our balance read and now.
		return user, false, nil
	}

	subRef := "pending:" + sessionID
	if f.sessions != nil {
		session, err := f.sessions.GetCheckoutSession(ctx, sessionID)
		if err != nil {
			log.Printf("billing: fallback could not retrieve checkout session %s: %v", sessionID, err)
		} else if session.SubscriptionID != "" {
			subRef = session.SubscriptionID
		}
	}

	user, err = f.ledger.ApplyCredit(ctx, accountID, ProPlanCredits, subRef)
	if err != nil {
		// Release the session claim so a retry or the webhook path can still
		// credit this checkout.
		if delErr := f.events.Delete(marker.ID); delErr != nil {
			log.Printf("billing: failed to release session marker for %s: %v", sessionID, delErr)
		}
		return nil, false, err
	}
	metrics.CreditsGranted.Add(float64(ProPlanCredits))
	metrics.FallbackCredits.Inc()
	log.Printf("billing: fallback credited %d to account %d for checkout %s (subscription %s)", ProPlanCredits, accountID, sessionID, subRef)
	return user, true, nil
}
