// Package handlers implements the gateway's HTTP surface: job submission,
// result polling, artifact serving and deletion, and health.
package handlers

import (
	"context"
	"time"

	"github.com/lyrasync/backend/internal/config"
	"github.com/lyrasync/backend/internal/jobs"
	"github.com/lyrasync/backend/internal/storage"
	"github.com/lyrasync/backend/internal/validate"
)

// Broker is the subset of broker operations the gateway needs. The server
// binary passes the Redis-backed client; tests pass a fake.
type Broker interface {
	Ping(ctx context.Context) error
	EnqueueTranslation(ctx context.Context, job *jobs.Job, timeout time.Duration) error
	GetJob(ctx context.Context, id string) (*jobs.Job, error)
}

// Handlers holds the gateway's dependencies. It owns no mutable state; the
// broker connection pool and the shared volume are both safe for
// concurrent use.
type Handlers struct {
	cfg    *config.Config
	broker Broker
	volume *storage.Volume

	// Validators are injectable so tests don't need ffprobe on PATH
	validateAudio  func(ctx context.Context, path string) error
	validateLyrics func(path string) error
}

// NewHandlers creates the gateway handlers
func NewHandlers(cfg *config.Config, broker Broker, volume *storage.Volume) *Handlers {
	return &Handlers{
		cfg:            cfg,
		broker:         broker,
		volume:         volume,
		validateAudio:  validate.Audio,
		validateLyrics: validate.Lyrics,
	}
}
