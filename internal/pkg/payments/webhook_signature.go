package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/VeloBillHQ/VeloBill/internal/pkg/apperrors"
)

// DefaultSignatureTolerance bounds how old a signed timestamp may be
// before the signature is rejected as a possible replay.
const DefaultSignatureTolerance = 5 * time.Minute

// VerifyStripeWebhookSignature checks the Stripe-Signature header
// against the raw request body. The header carries a signed timestamp
// and one or more v1 signatures: `t=<unix>,v1=<hex hmac>`; the HMAC is
// SHA256 over `<timestamp>.<payload>` keyed with the webhook secret.
func VerifyStripeWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	return verifyStripeSignatureAt(payload, signatureHeader, webhookSecret, time.Now(), DefaultSignatureTolerance)
}

// AuthenticateStripeWebhook verifies a delivery and reports a failed
// check as an AuthenticityError. Callers reject the request without
// touching any internal state.
func AuthenticateStripeWebhook(payload []byte, signatureHeader, webhookSecret string) error {
	if !VerifyStripeWebhookSignature(payload, signatureHeader, webhookSecret) {
		return &apperrors.AuthenticityError{Msg: "stripe webhook signature mismatch"}
	}
	return nil
}

func verifyStripeSignatureAt(payload []byte, signatureHeader, webhookSecret string, now time.Time, tolerance time.Duration) bool {
	header := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if header == "" || secret == "" {
		return false
	}

	var timestamp int64
	var candidates [][]byte
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return false
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(strings.ToLower(kv[1]))
			if err != nil {
				continue
			}
			candidates = append(candidates, sig)
		}
	}

	if timestamp == 0 || len(candidates) == 0 {
		return false
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > tolerance || age < -tolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range candidates {
		if hmac.Equal(expected, sig) {
			return true
		}
	}
	return false
}
