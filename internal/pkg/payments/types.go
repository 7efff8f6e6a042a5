package payments

import (
	"encoding/json"
	"strings"

	"github.com/VeloBillHQ/VeloBill/internal/pkg/apperrors"
)

const ProviderStripe = "stripe"

// Event kinds the reconciler acts on. Everything else is recorded and
// acknowledged without side effects.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
	EventPaymentFailed     = "payment_intent.payment_failed"
)

// Event is one decoded provider webhook delivery. Object keeps the raw
// `data.object` document so each handler can decode the shape it needs.
type Event struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Object json.RawMessage `json:"-"`
}

// CheckoutSessionObject is the subset of a checkout session the
// reconciler reads from completed/expired events.
type CheckoutSessionObject struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

// PaymentIntentObject is the subset of a payment intent read from
// payment_intent.payment_failed events.
type PaymentIntentObject struct {
	ID               string `json:"id"`
	LastPaymentError struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// ParseEvent decodes the outer event envelope. Malformed bodies and
// envelopes without an event id are rejected as ValidationError.
func ParseEvent(raw []byte) (*Event, error) {
	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &apperrors.ValidationError{Msg: "webhook body is not valid JSON", Err: err}
	}
	if strings.TrimSpace(envelope.ID) == "" || strings.TrimSpace(envelope.Type) == "" {
		return nil, &apperrors.ValidationError{Msg: "webhook event is missing id or type"}
	}
	return &Event{
		ID:     envelope.ID,
		Type:   envelope.Type,
		Object: envelope.Data.Object,
	}, nil
}

func (e *Event) checkoutSession() (*CheckoutSessionObject, error) {
	var session CheckoutSessionObject
	if err := json.Unmarshal(e.Object, &session); err != nil {
		return nil, &apperrors.ValidationError{Msg: "malformed checkout session object", Err: err}
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, &apperrors.ValidationError{Msg: "checkout session object has no id"}
	}
	return &session, nil
}

func (e *Event) paymentIntent() (*PaymentIntentObject, error) {
	var intent PaymentIntentObject
	if err := json.Unmarshal(e.Object, &intent); err != nil {
		return nil, &apperrors.ValidationError{Msg: "malformed payment intent object", Err: err}
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, &apperrors.ValidationError{Msg: "payment intent object has no id"}
	}
	return &intent, nil
}

// WebhookEventInput is the normalized input for webhook event
// persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}
