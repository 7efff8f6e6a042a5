package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	InvoiceEventViewed        = "viewed"
	InvoiceEventSent          = "sent"
	InvoiceEventPaid          = "paid"
	InvoiceEventPaymentFailed = "payment_failed"
	InvoiceEventReminderSent  = "reminder_sent"
)

// InvoiceEvent is the append-only audit log for an invoice. Rows are
// never updated or deleted; the metadata column doubles as an
// idempotency ledger (reminder suppression looks up the key in it).
type InvoiceEvent struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	InvoiceID string    `gorm:"type:varchar(36);not null;index" json:"invoice_id"`
	EventType string    `gorm:"type:varchar(50);not null;index" json:"event_type"`
	Metadata  string    `gorm:"type:text" json:"metadata"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// HasInvoiceEventWithKey reports whether an event of the given type
// already carries the idempotency key in its metadata.
func HasInvoiceEventWithKey(db *gorm.DB, invoiceID, eventType, idempotencyKey string) (bool, error) {
	var count int64
	err := db.Model(&InvoiceEvent{}).
		Where("invoice_id = ? AND event_type = ? AND metadata LIKE ?", invoiceID, eventType, "%"+idempotencyKey+"%").
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
