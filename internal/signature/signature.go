package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrMissingSecret    = errors.New("signing secret is not configured")
)

// Verifier checks Razorpay-style HMAC-SHA256 signatures.
type Verifier struct {
	keySecret     []byte
	webhookSecret []byte
}

func NewVerifier(keySecret, webhookSecret string) *Verifier {
	return &Verifier{
		keySecret:     []byte(keySecret),
		webhookSecret: []byte(webhookSecret),
	}
}

// VerifyPayment checks the checkout signature, which is the hex HMAC of
// "orderId|paymentId" under the API key secret.
func (v *Verifier) VerifyPayment(orderId, paymentId, signature string) error {
	if len(v.keySecret) == 0 {
		return ErrMissingSecret
	}
	if orderId == "" || paymentId == "" {
		return ErrInvalidSignature
	}
	return verify(v.keySecret, []byte(orderId+"|"+paymentId), signature)
}

// VerifyWebhook checks the X-Razorpay-Signature header against the raw body.
func (v *Verifier) VerifyWebhook(body []byte, signature string) error {
	if len(v.webhookSecret) == 0 {
		return ErrMissingSecret
	}
	return verify(v.webhookSecret, body, signature)
}

// Sign computes the hex HMAC-SHA256 of payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPayment is the checkout signature for an order and payment pair.
func SignPayment(secret, orderId, paymentId string) string {
	return Sign(secret, []byte(orderId+"|"+paymentId))
}

func verify(secret, payload []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}
