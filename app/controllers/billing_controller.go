package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/JonasBergmann/CompanionDeck/app/repository"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/billing"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/cache"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/database"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/env"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/ledger"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/mail"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/session"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/usercontext"
)

const preCheckoutCachePrefix = "billing:precheckout:"

// billingProvider is the slice of the payment provider API the checkout and
// cancellation handlers need. Satisfied by *billing.StripeClient.
type billingProvider interface {
	FindOrCreateCustomer(ctx context.Context, email, name string) (*billing.StripeCustomer, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string) (*billing.StripeCheckoutSession, error)
	CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*billing.StripeSubscription, error)
}

var (
	billingStripe     billingProvider
	billingReconciler *billing.Reconciler
	billingFallback   *billing.Fallback
)

// SetBillingDependencies swaps the billing collaborators, used by tests. Nil
// arguments are ignored.
func SetBillingDependencies(provider billingProvider, reconciler *billing.Reconciler, fallback *billing.Fallback) {
	if provider != nil {
		billingStripe = provider
	}
	if reconciler != nil {
		billingReconciler = reconciler
	}
	if fallback != nil {
		billingFallback = fallback
	}
}

func getBillingProvider() billingProvider {
	if billingStripe == nil {
		billingStripe = billing.NewStripeClientFromEnv()
	}
	return billingStripe
}

func getBillingReconciler() *billing.Reconciler {
	if billingReconciler == nil {
		stripe := billing.NewStripeClientFromEnv()
		billingReconciler = billing.NewReconcilerFromDB(database.GetDB(), stripe)
	}
	return billingReconciler
}

func getBillingFallback() *billing.Fallback {
	if billingFallback == nil {
		stripe := billing.NewStripeClientFromEnv()
		billingFallback = billing.NewFallback(
			ledger.NewServiceFromDB(database.GetDB()),
			repository.GetGlobalFactory().GetWebhookEventRepository(),
			stripe,
			billing.DefaultGracePeriod,
		)
	}
	return billingFallback
}

// HandleStripeWebhook ingests payment provider notifications. The signature is
// verified against the raw body before anything is persisted; a bad signature
// is rejected with 400 and leaves no trace. Terminal outcomes (applied,
// duplicate, ignored, dropped) answer 200 so the provider stops redelivering;
// a transient store or provider failure answers 500 so the redelivery retries
// and a paid event is never lost.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	if !billing.VerifyStripeWebhookSignature(rawBody, signature, secret, billing.DefaultSignatureTolerance) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ev, err := billing.ParseStripeEvent(rawBody)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	outcome, procErr := getBillingReconciler().ProcessEvent(ctx, ev, rawBody)
	if procErr != nil {
		log.Printf("billing: event %s (%s) processed with outcome %s: %v", ev.ID, ev.Kind, outcome, procErr)
	}
	if outcome == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "outcome": outcome})
}

type checkoutRequest struct {
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// HandleCreateCheckout starts a subscription checkout for the pro plan. The
// current balance is snapshotted under the new session id so the manual
// reconciliation fallback can later tell whether the webhook credit landed.
func HandleCreateCheckout(c *fiber.Ctx) error {
	userCtx, ok := requireSessionUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	var req checkoutRequest
	_ = c.BodyParser(&req)

	repo := repository.GetGlobalFactory().GetAccountRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	provider := getBillingProvider()
	customer, err := provider.FindOrCreateCustomer(ctx, account.Email, account.Name)
	if err != nil {
		log.Printf("billing: customer lookup for account %d failed: %v", account.ID, err)
		return jsonError(c, fiber.StatusBadGateway, "provider_error", "Payment provider is unavailable")
	}
	if account.StripeCustomerID != customer.ID {
		if err := repo.SetStripeCustomerID(account.ID, customer.ID); err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to link payment customer")
		}
	}

	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if base == "" {
		base = "http://localhost:" + env.GetEnv("APP_PORT", "4000")
	}
	successURL := req.SuccessURL
	if successURL == "" {
		successURL = base + "/billing/success?session_id={CHECKOUT_SESSION_ID}"
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = base + "/billing/cancel"
	}

	checkout, err := provider.CreateCheckoutSession(ctx, customer.ID, env.GetEnv("STRIPE_PRICE_ID_PRO", ""), successURL, cancelURL)
	if err != nil {
		log.Printf("billing: checkout session for account %d failed: %v", account.ID, err)
		return jsonError(c, fiber.StatusBadGateway, "provider_error", "Checkout could not be started")
	}

	// Snapshot for the post-redirect balance comparison.
	if err := cache.Set(preCheckoutCachePrefix+checkout.ID, account.Credits, 24*time.Hour); err != nil {
		log.Printf("billing: pre-checkout snapshot for session %s failed: %v", checkout.ID, err)
	}

	return c.JSON(fiber.Map{
		"session_id":   checkout.ID,
		"checkout_url": checkout.URL,
	})
}

type reconcileRequest struct {
	SessionID string `json:"session_id"`
}

// HandleCheckoutReconcile is called by the client after the checkout success
// redirect. It waits out a short grace period for the webhook, then credits
// manually if the balance shows no grant for this session yet.
func HandleCheckoutReconcile(c *fiber.Ctx) error {
	userCtx, ok := requireSessionUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	var req reconcileRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.SessionID) == "" {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "session_id is required")
	}
	sessionID := strings.TrimSpace(req.SessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ledgerSvc := ledger.NewServiceFromDB(database.GetDB())
	preCredits, err := cache.GetInt64(preCheckoutCachePrefix + sessionID)
	if err != nil {
		// Snapshot expired or was never written; fall back to the current
		// balance so only the session marker guards against double credit.
		account, readErr := ledgerSvc.Read(ctx, userCtx.UserID)
		if readErr != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load account")
		}
		preCredits = account.Credits
	}

	account, credited, err := getBillingFallback().ReconcileAfterCheckout(ctx, userCtx.UserID, sessionID, preCredits)
	if err != nil {
		log.Printf("billing: manual reconcile for account %d session %s failed: %v", userCtx.UserID, sessionID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Reconciliation failed")
	}

	_ = cache.Delete(preCheckoutCachePrefix + sessionID)
	_ = session.SetSessionValue(c, usercontext.KeyUserPlan, account.PlanLabel())

	return c.JSON(fiber.Map{
		"credits":  account.Credits,
		"plan":     account.PlanLabel(),
		"credited": credited,
	})
}

// HandleCancelSubscription schedules the subscription to end at the close of
// the current billing period. Credits and the local subscription reference
// stay untouched; the provider's deletion event clears the reference when the
// period actually ends.
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx, ok := requireSessionUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	repo := repository.GetGlobalFactory().GetAccountRepository()
	account, err := repo.GetByID(userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}
	if !account.HasSubscription() {
		return jsonError(c, fiber.StatusConflict, "no_active_subscription", "There is no subscription to cancel")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	sub, err := getBillingProvider().CancelSubscriptionAtPeriodEnd(ctx, account.SubscriptionID)
	if err != nil {
		log.Printf("billing: cancel for subscription %s failed: %v", account.SubscriptionID, err)
		return jsonError(c, fiber.StatusBadGateway, "provider_error", "Cancellation could not be scheduled")
	}

	if mail.Enabled() {
		go func(email string) {
			_ = mail.SendMail(email, "Your subscription has been cancelled",
				"<p>Your pro subscription ends at the close of the current billing period. Remaining credits stay on your account.</p>")
		}(account.Email)
	}

	return c.JSON(fiber.Map{
		"ok":                   true,
		"subscription_id":      sub.ID,
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
		"current_period_end":   sub.CurrentPeriodEnd,
	})
}
