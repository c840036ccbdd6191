package billing

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/JonasBergmann/CompanionDeck/app/models"
	"github.com/JonasBergmann/CompanionDeck/app/repository"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/ledger"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/mail"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/metrics"
	"gorm.io/gorm"
)

// ErrAccountNotResolved means a payment event could not be mapped to a local
// account. The event is dropped and logged for a human to investigate; the
// provider is still acknowledged so it does not retry.
var ErrAccountNotResolved = errors.New("no account resolves for payment event customer")

// Processing outcomes reported per event.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeDropped   = "dropped"
)

// Event type stored for the per-checkout-session credit marker shared between
// the reconciler and the manual fallback.
const sessionCreditEventType = "checkout.session.credit"

// CustomerLookup resolves a provider customer id to its record, used to
// recover an email address for events that do not carry one.
type CustomerLookup interface {
	GetCustomer(ctx context.Context, customerID string) (*StripeCustomer, error)
}

// Reconciler consumes provider payment notifications and applies idempotent,
// monotonic credit updates to the ledger. Redelivered events dedup against
// the persisted webhook event table; credits for one checkout session dedup
// against the fallback path through a shared session marker.
type Reconciler struct {
	ledger    *ledger.Service
	accounts  repository.AccountRepository
	events    repository.WebhookEventRepository
	customers CustomerLookup
}

// NewReconciler creates a reconciler from injected collaborators.
func NewReconciler(ledgerSvc *ledger.Service, accounts repository.AccountRepository, events repository.WebhookEventRepository, customers CustomerLookup) *Reconciler {
	return &Reconciler{
		ledger:    ledgerSvc,
		accounts:  accounts,
		events:    events,
		customers: customers,
	}
}

// NewReconcilerFromDB wires a reconciler against a GORM DB handle and a
// Stripe client.
func NewReconcilerFromDB(db *gorm.DB, stripe *StripeClient) *Reconciler {
	return NewReconciler(
		ledger.NewServiceFromDB(db),
		repository.NewAccountRepository(db),
		repository.NewWebhookEventRepository(db),
		stripe,
	)
}

// ProcessEvent records the delivery for dedup and dispatches on the event
// kind. Only a delivery whose row is already marked processed dedups as a
// duplicate; an unprocessed row means a previous attempt failed transiently
// and the event is dispatched again. Transient failures leave the row
// unprocessed and surface the error so the caller answers 5xx and the
// provider redelivers; a paid event must never be lost to a flaky store.
func (r *Reconciler) ProcessEvent(ctx context.Context, ev *PaymentEvent, rawPayload []byte) (string, error) {
	created, stored, err := r.events.CreateIfNotExists(&models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: ev.ID,
		EventType:       ev.Kind,
		PayloadJSON:     string(rawPayload),
		SignatureValid:  true,
	})
	if err != nil {
		return "", err
	}
	if !created && stored.ProcessedAt != nil {
		metrics.WebhookEvents.WithLabelValues(ev.Kind, OutcomeDuplicate).Inc()
		return OutcomeDuplicate, nil
	}

	var outcome string
	var procErr error
	switch ev.Kind {
	case EventCheckoutCompleted:
		outcome, procErr = r.applyCheckoutCompleted(ctx, ev)
	case EventInvoicePaid:
		outcome, procErr = r.applyInvoicePaid(ctx, ev)
	case EventSubscriptionDeleted:
		outcome, procErr = r.applySubscriptionDeleted(ctx, ev)
	default:
		log.Printf("billing: ignoring unhandled event type %s (%s)", ev.Kind, ev.ID)
		outcome = OutcomeIgnored
	}

	errMsg := ""
	if procErr != nil {
		if !isTerminal(procErr) {
			log.Printf("billing: event %s (%s) failed transiently, left unprocessed for redelivery: %v", ev.ID, ev.Kind, procErr)
			return "", procErr
		}
		errMsg = procErr.Error()
	}
	if err := r.events.MarkProcessed(stored.ID, errMsg); err != nil {
		log.Printf("billing: failed to mark webhook event %d processed: %v", stored.ID, err)
	}
	metrics.WebhookEvents.WithLabelValues(ev.Kind, outcome).Inc()
	return outcome, procErr
}

// isTerminal reports whether a processing error can never succeed on retry.
// Terminal events are marked processed and dropped; everything else is left
// for the provider's redelivery.
func isTerminal(err error) bool {
	return errors.Is(err, ErrAccountNotResolved) || errors.Is(err, ledger.ErrNotFound)
}

// applyCheckoutCompleted credits the pro plan grant for a freshly paid
// checkout and stores the new subscription reference.
func (r *Reconciler) applyCheckoutCompleted(ctx context.Context, ev *PaymentEvent) (string, error) {
	if ev.PaymentStatus != "paid" || ev.CustomerID == "" {
		log.Printf("billing: checkout event %s not actionable (status=%q customer=%q)", ev.ID, ev.PaymentStatus, ev.CustomerID)
		return OutcomeIgnored, nil
	}

	user, err := r.resolveAccount(ctx, ev.CustomerID, ev.CustomerEmail)
	if err != nil {
		return OutcomeDropped, err
	}

	var marker *models.BillingWebhookEvent
	if ev.SessionID != "" {
		created, row, err := r.markSessionCredited(ev.SessionID, "webhook")
		if err != nil {
			return OutcomeDropped, err
		}
		if !created {
			// The fallback path already credited this checkout.
			return OutcomeDuplicate, nil
		}
		marker = row
	}

	if _, err := r.ledger.ApplyCredit(ctx, user.ID, ProPlanCredits, ev.SubscriptionID); err != nil {
		// Release the session claim so the redelivery or the fallback can
		// still credit this checkout.
		if marker != nil {
			if delErr := r.events.Delete(marker.ID); delErr != nil {
				log.Printf("billing: failed to release session marker for %s: %v", ev.SessionID, delErr)
			}
		}
		return OutcomeDropped, err
	}
	metrics.CreditsGranted.Add(float64(ProPlanCredits))
	log.Printf("billing: credited %d to account %d for checkout %s (subscription %s)", ProPlanCredits, user.ID, ev.SessionID, ev.SubscriptionID)

	if mail.Enabled() {
		go func(email string) {
			_ = mail.SendMail(email, "Your pro subscription is active",
				fmt.Sprintf("<p>Thanks for upgrading! %d credits were added to your account.</p>", ProPlanCredits))
		}(user.Email)
	}
	return OutcomeApplied, nil
}

// applyInvoicePaid credits a recurring renewal charge.
func (r *Reconciler) applyInvoicePaid(ctx context.Context, ev *PaymentEvent) (string, error) {
	if ev.CustomerID == "" || ev.SubscriptionID == "" {
		log.Printf("billing: invoice event %s not actionable (customer=%q subscription=%q)", ev.ID, ev.CustomerID, ev.SubscriptionID)
		return OutcomeIgnored, nil
	}

	user, err := r.resolveAccount(ctx, ev.CustomerID, ev.CustomerEmail)
	if err != nil {
		return OutcomeDropped, err
	}

	if _, err := r.ledger.ApplyCredit(ctx, user.ID, ProPlanCredits, ev.SubscriptionID); err != nil {
		return OutcomeDropped, err
	}
	metrics.CreditsGranted.Add(float64(ProPlanCredits))
	log.Printf("billing: credited %d to account %d for invoice renewal (subscription %s)", ProPlanCredits, user.ID, ev.SubscriptionID)
	return OutcomeApplied, nil
}

// applySubscriptionDeleted clears the subscription reference, but only while
// the account still points at the terminated subscription. A deletion racing
// a newer checkout must not clear the replacement reference.
func (r *Reconciler) applySubscriptionDeleted(ctx context.Context, ev *PaymentEvent) (string, error) {
	if ev.CustomerID == "" {
		log.Printf("billing: deletion event %s carries no customer, ignoring", ev.ID)
		return OutcomeIgnored, nil
	}

	user, err := r.resolveAccount(ctx, ev.CustomerID, ev.CustomerEmail)
	if err != nil {
		return OutcomeDropped, err
	}

	updated, cleared, err := r.ledger.CompareAndClearSubscription(ctx, user.ID, ev.SubscriptionID)
	if err != nil {
		return OutcomeDropped, err
	}
	if !cleared {
		log.Printf("billing: stale deletion for subscription %s ignored, account %d now holds %q", ev.SubscriptionID, user.ID, updated.SubscriptionID)
		return OutcomeIgnored, nil
	}
	log.Printf("billing: cleared subscription %s on account %d", ev.SubscriptionID, user.ID)
	return OutcomeApplied, nil
}

// resolveAccount maps a provider customer reference to the local account:
// first by the stored customer id, then by email (from the event, or fetched
// from the provider when the event carries none).
func (r *Reconciler) resolveAccount(ctx context.Context, customerID, eventEmail string) (*models.User, error) {
	user, err := r.accounts.GetByStripeCustomerID(customerID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	email := eventEmail
	if email == "" && r.customers != nil {
		customer, err := r.customers.GetCustomer(ctx, customerID)
		if err != nil {
			return nil, fmt.Errorf("provider customer lookup for %s failed: %w", customerID, err)
		}
		email = customer.Email
	}
	if email == "" {
		log.Printf("billing: no account and no email for customer %s", customerID)
		return nil, ErrAccountNotResolved
	}

	user, err = r.accounts.GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("billing: no account for customer %s (email %s)", customerID, email)
			return nil, ErrAccountNotResolved
		}
		return nil, err
	}
	return user, nil
}

func (r *Reconciler) markSessionCredited(sessionID, source string) (bool, *models.BillingWebhookEvent, error) {
	return r.events.CreateIfNotExists(&models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: "session:" + sessionID,
		EventType:       sessionCreditEventType,
		PayloadJSON:     fmt.Sprintf(`{"session_id":%q,"source":%q}`, sessionID, source),
		SignatureValid:  true,
	})
}
