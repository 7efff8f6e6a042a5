package codequeue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VeloBillHQ/VeloBill/internal/pkg/apperrors"
)

func TestParseMessageValid(t *testing.T) {
	raw := []byte(`{
		"type": "CODE_GENERATED",
		"codeId": "code-1",
		"userId": "user-1",
		"code": "print('hi')",
		"status": "pending",
		"aiGenerated": true,
		"emailSend": true
	}`)

	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeCodeGenerated, msg.Type)
	assert.Equal(t, "code-1", msg.CodeID)
	assert.Equal(t, "user-1", msg.UserID)
	assert.True(t, msg.AIGenerated)
	assert.True(t, msg.EmailSend)

	task := msg.ToPendingTask()
	assert.Equal(t, "code-1", task.CodeID)
	assert.Equal(t, "user-1", task.UserID)
	assert.Equal(t, "pending", task.Status)
	assert.True(t, task.AIGenerated)
	assert.True(t, task.EmailSend)
}

func TestParseMessageRejectsPoison(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `not json at all`},
		{"unknown type", `{"type":"CODE_DELETED","codeId":"c","userId":"u","code":"x","status":"pending"}`},
		{"empty type", `{"codeId":"c","userId":"u","code":"x","status":"pending"}`},
		{"missing code id", `{"type":"CODE_GENERATED","userId":"u","code":"x","status":"pending"}`},
		{"missing user id", `{"type":"CODE_GENERATED","codeId":"c","code":"x","status":"pending"}`},
		{"invalid status", `{"type":"CODE_GENERATED","codeId":"c","userId":"u","code":"x","status":"exploded"}`},
		{"wrong field type", `{"type":"CODE_GENERATED","codeId":42,"userId":"u","code":"x","status":"pending"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.raw))
			require.Error(t, err)

			var validationErr *apperrors.ValidationError
			assert.ErrorAs(t, err, &validationErr, "poison messages must carry a ValidationError")
		})
	}
}
