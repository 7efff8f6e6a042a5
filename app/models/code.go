package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	CodeStatusPending = "pending"
	CodeStatusSuccess = "success"
)

// Code is a generated bike-program code awaiting asynchronous
// evaluation. It is the entity the evaluation scheduler debounces on.
type Code struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID      string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Code        string    `gorm:"type:text;not null" json:"code"`
	Status      string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	AIGenerated bool      `gorm:"default:false" json:"ai_generated"`
	EmailSend   bool      `gorm:"default:false" json:"email_send"`
	AISummary   string    `gorm:"type:text" json:"ai_summary"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// MarkCodeSuccess persists the pending -> success transition together
// with the evaluation side-effect flags.
func MarkCodeSuccess(db *gorm.DB, codeID, aiSummary string) error {
	return db.Model(&Code{}).Where("id = ?", codeID).Updates(map[string]interface{}{
		"status":       CodeStatusSuccess,
		"ai_generated": true,
		"email_send":   true,
		"ai_summary":   aiSummary,
		"updated_at":   time.Now(),
	}).Error
}
