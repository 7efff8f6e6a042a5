package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VeloBillHQ/VeloBill/internal/pkg/apperrors"
)

func signPayload(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyStripeWebhookSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)
	ts := now.Unix()
	valid := signPayload(payload, secret, ts)

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"valid signature", fmt.Sprintf("t=%d,v1=%s", ts, valid), true},
		{"valid with spaces", fmt.Sprintf("t=%d, v1=%s", ts, valid), true},
		{"second v1 candidate matches", fmt.Sprintf("t=%d,v1=deadbeef,v1=%s", ts, valid), true},
		{"wrong signature", fmt.Sprintf("t=%d,v1=deadbeef", ts), false},
		{"tampered payload signature", fmt.Sprintf("t=%d,v1=%s", ts, signPayload([]byte(`{"id":"evt_2"}`), secret, ts)), false},
		{"missing timestamp", "v1=" + valid, false},
		{"missing signature", fmt.Sprintf("t=%d", ts), false},
		{"garbage timestamp", "t=abc,v1=" + valid, false},
		{"empty header", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := verifyStripeSignatureAt(payload, tt.header, secret, now, DefaultSignatureTolerance)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVerifyStripeWebhookSignatureTolerance(t *testing.T) {
	payload := []byte(`{}`)
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)

	oldTS := now.Add(-10 * time.Minute).Unix()
	header := fmt.Sprintf("t=%d,v1=%s", oldTS, signPayload(payload, secret, oldTS))
	assert.False(t, verifyStripeSignatureAt(payload, header, secret, now, DefaultSignatureTolerance),
		"stale timestamp must be rejected even with a valid HMAC")

	recentTS := now.Add(-time.Minute).Unix()
	header = fmt.Sprintf("t=%d,v1=%s", recentTS, signPayload(payload, secret, recentTS))
	assert.True(t, verifyStripeSignatureAt(payload, header, secret, now, DefaultSignatureTolerance))
}

func TestAuthenticateStripeWebhook(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	secret := "whsec_test"
	ts := time.Now().Unix()
	header := fmt.Sprintf("t=%d,v1=%s", ts, signPayload(payload, secret, ts))

	assert.NoError(t, AuthenticateStripeWebhook(payload, header, secret))

	err := AuthenticateStripeWebhook(payload, header, "whsec_other")
	require.Error(t, err)
	var authErr *apperrors.AuthenticityError
	assert.ErrorAs(t, err, &authErr)
}

func TestVerifyStripeWebhookSignatureEmptySecret(t *testing.T) {
	payload := []byte(`{}`)
	ts := time.Now().Unix()
	header := fmt.Sprintf("t=%d,v1=%s", ts, signPayload(payload, "", ts))
	assert.False(t, VerifyStripeWebhookSignature(payload, header, ""))
}
