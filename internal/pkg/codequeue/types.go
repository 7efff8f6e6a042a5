package codequeue

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/VeloBillHQ/VeloBill/internal/pkg/apperrors"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/scheduler"
)

// MessageType discriminates the inbound queue message union
type MessageType string

const (
	MessageTypeCodeGenerated MessageType = "CODE_GENERATED"
)

// CodeGeneratedMessage announces that a bike-program code was generated
// and needs asynchronous evaluation.
type CodeGeneratedMessage struct {
	Type        MessageType `json:"type" validate:"required"`
	CodeID      string      `json:"codeId" validate:"required"`
	UserID      string      `json:"userId" validate:"required"`
	Code        string      `json:"code" validate:"required"`
	Status      string      `json:"status" validate:"required,oneof=pending success"`
	AIGenerated bool        `json:"aiGenerated"`
	EmailSend   bool        `json:"emailSend"`
}

// ToPendingTask converts the message into the scheduler payload
func (m *CodeGeneratedMessage) ToPendingTask() scheduler.PendingTask {
	return scheduler.PendingTask{
		CodeID:      m.CodeID,
		UserID:      m.UserID,
		Status:      m.Status,
		AIGenerated: m.AIGenerated,
		EmailSend:   m.EmailSend,
	}
}

var validate = validator.New()

// ParseMessage validates a raw queue message against the closed set of
// known variants. Unknown discriminants and malformed payloads return a
// ValidationError; adding a new message kind is a deliberate schema
// change here, never silently accepted.
func ParseMessage(raw []byte) (*CodeGeneratedMessage, error) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &apperrors.ValidationError{Msg: "message is not valid JSON", Err: err}
	}

	switch envelope.Type {
	case MessageTypeCodeGenerated:
		var msg CodeGeneratedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, &apperrors.ValidationError{Msg: "malformed CODE_GENERATED payload", Err: err}
		}
		if err := validate.Struct(&msg); err != nil {
			return nil, &apperrors.ValidationError{Msg: "invalid CODE_GENERATED payload", Err: err}
		}
		return &msg, nil
	default:
		return nil, &apperrors.ValidationError{Msg: fmt.Sprintf("unknown message type %q", envelope.Type)}
	}
}
