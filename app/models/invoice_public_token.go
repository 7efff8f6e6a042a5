package models

import (
	"time"

	"gorm.io/gorm"
)

// InvoicePublicToken maps an unguessable token to an invoice so clients
// can view and pay it without an account.
type InvoicePublicToken struct {
	ID        string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	InvoiceID string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"invoice_id"`
	Token     string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"token"`
	ExpiresAt *time.Time `gorm:"type:timestamp;default:null" json:"expires_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// IsExpired reports whether the token has lapsed. A nil expiry means
// the token never expires.
func (t *InvoicePublicToken) IsExpired() bool {
	return t.ExpiresAt != nil && time.Now().After(*t.ExpiresAt)
}

// FindInvoiceByPublicToken resolves a public token to its invoice.
func FindInvoiceByPublicToken(db *gorm.DB, token string) (*Invoice, error) {
	var pt InvoicePublicToken
	if err := db.Where("token = ?", token).First(&pt).Error; err != nil {
		return nil, err
	}
	if pt.IsExpired() {
		return nil, gorm.ErrRecordNotFound
	}
	return FindInvoiceByID(db, pt.InvoiceID)
}
