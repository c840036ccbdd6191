package constants

// Static route constants
const (
	APIRoute           = "/api"
	APIv1Route         = "/v1"
	StripeWebhookRoute = "/webhook/stripe"
	HealthRoute        = "/health"
	MetricsRoute       = "/metrics"
)
