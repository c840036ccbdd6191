package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStripeEventCheckoutCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_1",
				"customer": "cus_1",
				"subscription": "sub_1",
				"payment_status": "paid",
				"customer_details": {"email": "lena@example.com"}
			}
		}
	}`)

	ev, err := ParseStripeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, EventCheckoutCompleted, ev.Kind)
	assert.Equal(t, "cs_test_1", ev.SessionID)
	assert.Equal(t, "cus_1", ev.CustomerID)
	assert.Equal(t, "lena@example.com", ev.CustomerEmail)
	assert.Equal(t, "sub_1", ev.SubscriptionID)
	assert.Equal(t, "paid", ev.PaymentStatus)
}

func TestParseStripeEventInvoicePaid(t *testing.T) {
	payload := []byte(`{
		"id": "evt_2",
		"type": "invoice.payment_succeeded",
		"data": {
			"object": {
				"id": "in_1",
				"customer": "cus_2",
				"subscription": "sub_2"
			}
		}
	}`)

	ev, err := ParseStripeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, EventInvoicePaid, ev.Kind)
	assert.Equal(t, "cus_2", ev.CustomerID)
	assert.Equal(t, "sub_2", ev.SubscriptionID)
	assert.Empty(t, ev.SessionID)
}

func TestParseStripeEventSubscriptionDeleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_3",
		"type": "customer.subscription.deleted",
		"data": {
			"object": {
				"id": "sub_3",
				"customer": "cus_3"
			}
		}
	}`)

	ev, err := ParseStripeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, EventSubscriptionDeleted, ev.Kind)
	// For deletions the object id IS the subscription reference.
	assert.Equal(t, "sub_3", ev.SubscriptionID)
	assert.Equal(t, "cus_3", ev.CustomerID)
}

func TestParseStripeEventUnhandledTypeStillParses(t *testing.T) {
	payload := []byte(`{"id": "evt_4", "type": "customer.updated", "data": {"object": {}}}`)

	ev, err := ParseStripeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "customer.updated", ev.Kind)
}

func TestParseStripeEventRejectsGarbage(t *testing.T) {
	if _, err := ParseStripeEvent([]byte("not json")); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
	if _, err := ParseStripeEvent([]byte(`{"type":"checkout.session.completed"}`)); err == nil {
		t.Fatalf("expected error for missing event id")
	}
}
