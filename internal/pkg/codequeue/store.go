package codequeue

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/VeloBillHQ/VeloBill/app/models"
)

// CodeStore persists the code entity an inbound message announces, so
// the evaluation pipeline finds it when the debounce fires.
type CodeStore interface {
	UpsertCode(ctx context.Context, msg *CodeGeneratedMessage) error
}

type gormCodeStore struct {
	db *gorm.DB
}

// NewCodeStore creates the gorm-backed code store
func NewCodeStore(db *gorm.DB) CodeStore {
	return &gormCodeStore{db: db}
}

// UpsertCode inserts or refreshes the code row from the message fields.
// On conflict the status column is left alone: the pending -> success
// transition is owned by the evaluation workflow, and a redelivered
// message must not downgrade it.
func (s *gormCodeStore) UpsertCode(ctx context.Context, msg *CodeGeneratedMessage) error {
	code := &models.Code{
		ID:          msg.CodeID,
		UserID:      msg.UserID,
		Code:        msg.Code,
		Status:      msg.Status,
		AIGenerated: msg.AIGenerated,
		EmailSend:   msg.EmailSend,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "code", "ai_generated", "email_send", "updated_at"}),
	}).Create(code).Error
}
