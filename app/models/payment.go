package models

import (
	"time"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// Payment is one payment attempt against an invoice, linked 1:1 to a
// provider checkout session. Status transitions are monotonic: once a
// payment reaches a terminal status it never leaves it, which makes
// duplicate or out-of-order webhook deliveries safe to apply.
type Payment struct {
	ID                string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	InvoiceID         string     `gorm:"type:varchar(36);not null;index" json:"invoice_id"`
	CheckoutSessionID string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"checkout_session_id"`
	PaymentIntentID   string     `gorm:"type:varchar(191);default:'';index" json:"payment_intent_id"`
	Amount            int64      `gorm:"not null;default:0" json:"amount"`
	Currency          string     `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Status            string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PaidAt            *time.Time `gorm:"type:timestamp;default:null" json:"paid_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the payment already reached a final status.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusSucceeded || p.Status == PaymentStatusFailed
}
