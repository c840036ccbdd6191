package billing

import (
	"encoding/json"
	"errors"
	"strings"
)

// Stripe event types handled by the reconciler. Everything else is
// acknowledged and ignored.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// PaymentEvent is the normalized shape of a provider payment notification.
// SessionID is only set for checkout events and doubles as the idempotency
// key shared with the manual reconciliation fallback.
type PaymentEvent struct {
	ID             string
	Kind           string
	SessionID      string
	CustomerID     string
	CustomerEmail  string
	SubscriptionID string
	PaymentStatus  string
}

// ParseStripeEvent decodes a raw Stripe webhook body into a PaymentEvent.
// Unhandled event kinds still parse (Kind carries the raw type) so the caller
// can acknowledge and skip them.
func ParseStripeEvent(payload []byte) (*PaymentEvent, error) {
	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}
	if strings.TrimSpace(envelope.ID) == "" {
		return nil, errors.New("stripe event payload missing event id")
	}

	out := &PaymentEvent{
		ID:   strings.TrimSpace(envelope.ID),
		Kind: strings.TrimSpace(envelope.Type),
	}

	switch out.Kind {
	case EventCheckoutCompleted:
		var session struct {
			ID              string `json:"id"`
			Customer        string `json:"customer"`
			Subscription    string `json:"subscription"`
			PaymentStatus   string `json:"payment_status"`
			CustomerDetails struct {
				Email string `json:"email"`
			} `json:"customer_details"`
		}
		if err := json.Unmarshal(envelope.Data.Object, &session); err != nil {
			return nil, err
		}
		out.SessionID = strings.TrimSpace(session.ID)
		out.CustomerID = strings.TrimSpace(session.Customer)
		out.CustomerEmail = strings.TrimSpace(session.CustomerDetails.Email)
		out.SubscriptionID = strings.TrimSpace(session.Subscription)
		out.PaymentStatus = strings.TrimSpace(session.PaymentStatus)
	case EventInvoicePaid:
		var invoice struct {
			ID           string `json:"id"`
			Customer     string `json:"customer"`
			Subscription string `json:"subscription"`
		}
		if err := json.Unmarshal(envelope.Data.Object, &invoice); err != nil {
			return nil, err
		}
		out.CustomerID = strings.TrimSpace(invoice.Customer)
		out.SubscriptionID = strings.TrimSpace(invoice.Subscription)
	case EventSubscriptionDeleted:
		var subscription struct {
			ID       string `json:"id"`
			Customer string `json:"customer"`
		}
		if err := json.Unmarshal(envelope.Data.Object, &subscription); err != nil {
			return nil, err
		}
		out.SubscriptionID = strings.TrimSpace(subscription.ID)
		out.CustomerID = strings.TrimSpace(subscription.Customer)
	}

	return out, nil
}
