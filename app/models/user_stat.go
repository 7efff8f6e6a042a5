package models

import "time"

// UserStat holds aggregated billing counters per user. Rows are
// written by the analytics flusher in batches, never by request
// handlers directly.
type UserStat struct {
	UserID        string    `gorm:"primaryKey;type:varchar(36)" json:"user_id"`
	InvoicesPaid  int64     `gorm:"not null;default:0" json:"invoices_paid"`
	RevenueTotal  int64     `gorm:"not null;default:0" json:"revenue_total"`
	RemindersSent int64     `gorm:"not null;default:0" json:"reminders_sent"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
