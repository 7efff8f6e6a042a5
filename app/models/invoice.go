package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusViewed    = "viewed"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

// Invoice is the internal system of record for one billed amount.
// Payment-provider events are reconciled against it, never the other
// way around.
type Invoice struct {
	ID            string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID        string         `gorm:"type:varchar(36);not null;index" json:"user_id"`
	ClientID      string         `gorm:"type:varchar(36);not null;index" json:"client_id"`
	InvoiceNumber string         `gorm:"type:varchar(50);not null;uniqueIndex" json:"invoice_number"`
	Status        string         `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	Currency      string         `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Subtotal      int64          `gorm:"not null;default:0" json:"subtotal"`
	Tax           int64          `gorm:"not null;default:0" json:"tax"`
	Total         int64          `gorm:"not null;default:0" json:"total"`
	Notes         string         `gorm:"type:text" json:"notes"`
	DueDate       *time.Time     `gorm:"type:timestamp;default:null" json:"due_date"`
	PaidAt        *time.Time     `gorm:"type:timestamp;default:null" json:"paid_at"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsTerminal reports whether the invoice is in a state that no payment
// event may change anymore.
func (i *Invoice) IsTerminal() bool {
	return i.Status == InvoiceStatusPaid || i.Status == InvoiceStatusCancelled
}

// FindInvoiceByID loads an invoice by primary key
func FindInvoiceByID(db *gorm.DB, id string) (*Invoice, error) {
	var inv Invoice
	if err := db.Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}
