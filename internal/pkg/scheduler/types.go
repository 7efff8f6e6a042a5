package scheduler

import (
	"encoding/json"
	"time"
)

const (
	// Redis key prefixes
	TaskKeyPrefix  = "evalsched:task:"
	DeadlineSetKey = "evalsched:deadlines"

	// Scheduling settings
	DefaultDebounceInterval = 3 * time.Minute
	FireRetryDelay          = 1 * time.Minute
	TaskTTL                 = 24 * time.Hour // Orphaned tasks expire after 24 hours
)

// PendingTask is the debounced payload for one code entity. At most one
// exists per code at any time; a later Collect overwrites it in place.
type PendingTask struct {
	CodeID      string `json:"code_id"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	AIGenerated bool   `json:"ai_generated"`
	EmailSend   bool   `json:"email_send"`
}

// Marshal serializes the task for Redis storage
func (t PendingTask) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalPendingTask deserializes a task from Redis storage
func UnmarshalPendingTask(data []byte) (*PendingTask, error) {
	var t PendingTask
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// taskKey returns the Redis key holding the pending task for a code
func taskKey(codeID string) string {
	return TaskKeyPrefix + codeID
}
