package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	Env = map[string]string{"APP_ENV": "dev"}
	t.Cleanup(func() { Env = nil })

	t.Setenv("APP_ENV", "prod")
	assert.Equal(t, "dev", GetEnv("APP_ENV", "prod"))
	assert.True(t, IsDev())
}

func TestGetEnvFallsBackToProcessEnv(t *testing.T) {
	Env = nil
	t.Setenv("QUEUE_BATCH_SIZE", "25")

	assert.Equal(t, "25", GetEnv("QUEUE_BATCH_SIZE", ""))
	assert.Equal(t, 25, GetEnvInt("QUEUE_BATCH_SIZE", 10))
}

func TestGetEnvIntRejectsGarbage(t *testing.T) {
	Env = map[string]string{"QUEUE_BATCH_SIZE": "lots"}
	t.Cleanup(func() { Env = nil })

	assert.Equal(t, 10, GetEnvInt("QUEUE_BATCH_SIZE", 10))
	assert.Equal(t, 10, GetEnvInt("QUEUE_UNSET", 10))
}
