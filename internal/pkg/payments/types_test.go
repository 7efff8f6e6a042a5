package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VeloBillHQ/VeloBill/internal/pkg/apperrors"
)

func TestParseEvent(t *testing.T) {
	raw := []byte(`{
		"id": "evt_123",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_456", "payment_intent": "pi_789", "amount_total": 5000, "metadata": {"invoice_id": "inv-1"}}}
	}`)

	event, err := ParseEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "evt_123", event.ID)
	assert.Equal(t, EventCheckoutCompleted, event.Type)

	session, err := event.checkoutSession()
	require.NoError(t, err)
	assert.Equal(t, "cs_456", session.ID)
	assert.Equal(t, "pi_789", session.PaymentIntent)
	assert.Equal(t, int64(5000), session.AmountTotal)
	assert.Equal(t, "inv-1", session.Metadata["invoice_id"])
}

func TestParseEventRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"missing id", `{"type":"checkout.session.completed","data":{"object":{}}}`},
		{"missing type", `{"id":"evt_1","data":{"object":{}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.raw))
			require.Error(t, err)

			var validationErr *apperrors.ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestCheckoutSessionRequiresID(t *testing.T) {
	event := &Event{ID: "evt_1", Type: EventCheckoutCompleted, Object: []byte(`{"payment_intent":"pi_1"}`)}
	_, err := event.checkoutSession()
	require.Error(t, err)

	var validationErr *apperrors.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestPaymentIntentObject(t *testing.T) {
	event := &Event{
		ID:     "evt_1",
		Type:   EventPaymentFailed,
		Object: []byte(`{"id":"pi_1","last_payment_error":{"message":"card declined"}}`),
	}

	intent, err := event.paymentIntent()
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, "card declined", intent.LastPaymentError.Message)
}
