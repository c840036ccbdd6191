package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the ledger and payment reconciliation paths. Registered on the
// default registry and exposed via /metrics.
var (
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "companiondeck_webhook_events_total",
		Help: "Payment provider webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})

	CreditsGranted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "companiondeck_credits_granted_total",
		Help: "Credits added to accounts by the reconciler or fallback.",
	})

	CreditsDebited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "companiondeck_credits_debited_total",
		Help: "Credits charged for completed chat exchanges.",
	})

	FallbackCredits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "companiondeck_fallback_credit_applications_total",
		Help: "Credits applied by the manual reconciliation fallback path.",
	})

	ChatCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "companiondeck_chat_completions_total",
		Help: "Chat completion calls by outcome.",
	}, []string{"outcome"})
)
