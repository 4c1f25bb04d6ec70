package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "REDIS_HOST", "REDIS_PORT", "JOB_TIMEOUT_SECONDS", "WORKER_COUNT"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "localhost", cfg.RedisHost)
	assert.Equal(t, "6379", cfg.RedisPort)
	assert.Equal(t, 5000*time.Second, cfg.JobTimeout)
	assert.Equal(t, 1, cfg.WorkerCount)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis-service")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("ACCESS_CODES", "alpha, beta ,,gamma")
	t.Setenv("JOB_TIMEOUT_SECONDS", "120")
	t.Setenv("SHARED_DATA_DIR", "/mnt/shared")

	cfg := Load()

	assert.Equal(t, "redis-service", cfg.RedisHost)
	assert.Equal(t, "6380", cfg.RedisPort)
	assert.Equal(t, 120*time.Second, cfg.JobTimeout)
	assert.Equal(t, "/mnt/shared/audio", cfg.AudioDir())
	assert.Equal(t, "/mnt/shared/lyrics", cfg.LyricsDir())

	assert.True(t, cfg.HasAccessCode("alpha"))
	assert.True(t, cfg.HasAccessCode("beta"))
	assert.True(t, cfg.HasAccessCode("gamma"))
	assert.False(t, cfg.HasAccessCode(""))
	assert.False(t, cfg.HasAccessCode("delta"))
}
