package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceIsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{InvoiceStatusDraft, false},
		{InvoiceStatusSent, false},
		{InvoiceStatusViewed, false},
		{InvoiceStatusOverdue, false},
		{InvoiceStatusPaid, true},
		{InvoiceStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			inv := &Invoice{Status: tt.status}
			assert.Equal(t, tt.want, inv.IsTerminal())
		})
	}
}

func TestPaymentIsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{PaymentStatusPending, false},
		{PaymentStatusSucceeded, true},
		{PaymentStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			p := &Payment{Status: tt.status}
			assert.Equal(t, tt.want, p.IsTerminal())
		})
	}
}

func TestInvoicePublicTokenIsExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	assert.False(t, (&InvoicePublicToken{}).IsExpired(), "nil expiry never expires")
	assert.False(t, (&InvoicePublicToken{ExpiresAt: &future}).IsExpired())
	assert.True(t, (&InvoicePublicToken{ExpiresAt: &past}).IsExpired())
}

func TestBusinessSettingsBusinessName(t *testing.T) {
	s := &BusinessSettings{}
	assert.Equal(t, "VeloBill", s.GetBusinessName(), "unset name falls back to product default")

	s.BusinessName = "Acme Cycles"
	assert.Equal(t, "Acme Cycles", s.GetBusinessName())
}

func TestUserValidate(t *testing.T) {
	user := &User{
		Name:   "Jamie Rider",
		Email:  "jamie@example.com",
		Role:   ROLE_USER,
		Status: STATUS_ACTIVE,
	}
	assert.NoError(t, user.Validate())

	user.Email = "not-an-email"
	assert.Error(t, user.Validate())

	user.Email = "jamie@example.com"
	user.Role = "superuser"
	assert.Error(t, user.Validate())
}

func TestWebhookEventProcessedCleanly(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		event PaymentWebhookEvent
		want  bool
	}{
		{"never processed", PaymentWebhookEvent{}, false},
		{"processed without error", PaymentWebhookEvent{ProcessedAt: &now}, true},
		{"processed with error", PaymentWebhookEvent{ProcessedAt: &now, ProcessingError: "store down"}, false},
		{"error before processing finished", PaymentWebhookEvent{ProcessingError: "store down"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.ProcessedCleanly())
		})
	}
}

func TestUserIsActive(t *testing.T) {
	assert.True(t, (&User{Status: STATUS_ACTIVE}).IsActive())
	assert.False(t, (&User{Status: STATUS_INACTIVE}).IsActive())
}
