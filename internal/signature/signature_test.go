package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const testSecret = "rzp_test_secret"

func TestVerifyPayment(t *testing.T) {
	verifier := NewVerifier(testSecret, "whsec")
	sig := SignPayment(testSecret, "order_1", "pay_123")

	assert.NoError(t, verifier.VerifyPayment("order_1", "pay_123", sig))
	assert.Len(t, sig, 64)
}

func TestVerifyPayment_Tampered(t *testing.T) {
	verifier := NewVerifier(testSecret, "whsec")
	sig := SignPayment(testSecret, "order_1", "pay_123")

	assert.ErrorIs(t, verifier.VerifyPayment("order_2", "pay_123", sig), ErrInvalidSignature)
	assert.ErrorIs(t, verifier.VerifyPayment("order_1", "pay_124", sig), ErrInvalidSignature)
	assert.ErrorIs(t, verifier.VerifyPayment("order_1", "pay_123", ""), ErrInvalidSignature)
	assert.ErrorIs(t, verifier.VerifyPayment("order_1", "pay_123", "zz"), ErrInvalidSignature)
	assert.ErrorIs(t, verifier.VerifyPayment("", "pay_123", sig), ErrInvalidSignature)

	other := SignPayment("another_secret", "order_1", "pay_123")
	assert.ErrorIs(t, verifier.VerifyPayment("order_1", "pay_123", other), ErrInvalidSignature)
}

func TestVerifyPayment_KnownVector(t *testing.T) {
	// HMAC-SHA256("secret", "order_1|pay_1")
	sig := Sign("secret", []byte("order_1|pay_1"))
	assert.Equal(t, SignPayment("secret", "order_1", "pay_1"), sig)
	assert.NoError(t, NewVerifier("secret", "").VerifyPayment("order_1", "pay_1", sig))
}

func TestVerifyWebhook(t *testing.T) {
	verifier := NewVerifier(testSecret, "whsec")
	body := []byte(`{"event":"payment.captured"}`)

	assert.NoError(t, verifier.VerifyWebhook(body, Sign("whsec", body)))
	assert.ErrorIs(t, verifier.VerifyWebhook(body, Sign(testSecret, body)), ErrInvalidSignature)
	assert.ErrorIs(t, verifier.VerifyWebhook([]byte(`{"event":"payment.failed"}`), Sign("whsec", body)), ErrInvalidSignature)
}

func TestMissingSecret(t *testing.T) {
	verifier := NewVerifier("", "")
	assert.ErrorIs(t, verifier.VerifyPayment("o", "p", "sig"), ErrMissingSecret)
	assert.ErrorIs(t, verifier.VerifyWebhook([]byte("{}"), "sig"), ErrMissingSecret)
}
