package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func signPayload(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyStripeWebhookSignatureValid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	header := signPayload(payload, "whsec_test", time.Now().Unix())

	assert.True(t, VerifyStripeWebhookSignature(payload, header, "whsec_test", DefaultSignatureTolerance))
}

func TestVerifyStripeWebhookSignatureWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := signPayload(payload, "whsec_other", time.Now().Unix())

	assert.False(t, VerifyStripeWebhookSignature(payload, header, "whsec_test", DefaultSignatureTolerance))
}

func TestVerifyStripeWebhookSignatureTamperedBody(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := signPayload(payload, "whsec_test", time.Now().Unix())

	tampered := []byte(`{"id":"evt_2"}`)
	assert.False(t, VerifyStripeWebhookSignature(tampered, header, "whsec_test", DefaultSignatureTolerance))
}

func TestVerifyStripeWebhookSignatureExpiredTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	old := time.Now().Add(-10 * time.Minute).Unix()
	header := signPayload(payload, "whsec_test", old)

	assert.False(t, VerifyStripeWebhookSignature(payload, header, "whsec_test", DefaultSignatureTolerance))
	// Zero tolerance disables the timestamp check entirely.
	assert.True(t, VerifyStripeWebhookSignature(payload, header, "whsec_test", 0))
}

func TestVerifyStripeWebhookSignatureMalformedHeader(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)

	assert.False(t, VerifyStripeWebhookSignature(payload, "", "whsec_test", DefaultSignatureTolerance))
	assert.False(t, VerifyStripeWebhookSignature(payload, "v1=deadbeef", "whsec_test", DefaultSignatureTolerance))
	assert.False(t, VerifyStripeWebhookSignature(payload, "t=notanumber,v1=deadbeef", "whsec_test", DefaultSignatureTolerance))
	assert.False(t, VerifyStripeWebhookSignature(payload, signPayload(payload, "whsec_test", time.Now().Unix()), "", DefaultSignatureTolerance))
}

func TestVerifyStripeWebhookSignatureMultipleSignatures(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	ts := time.Now().Unix()
	valid := signPayload(payload, "whsec_test", ts)
	// A rotated-key header carries several v1 entries; one match suffices.
	header := fmt.Sprintf("t=%d,v1=%s,%s", ts, hex.EncodeToString(make([]byte, 32)), valid[len(fmt.Sprintf("t=%d,", ts)):])

	assert.True(t, VerifyStripeWebhookSignature(payload, header, "whsec_test", DefaultSignatureTolerance))
}
