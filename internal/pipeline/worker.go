package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lyrasync/backend/internal/broker"
	"github.com/lyrasync/backend/internal/jobs"
	"github.com/lyrasync/backend/internal/logger"
	"github.com/lyrasync/backend/internal/storage"
)

// popTimeout is how long a worker blocks on an empty queue before checking
// for shutdown
const popTimeout = 5 * time.Second

// Worker drains the translation and cleanup queues. Each translation
// worker goroutine processes one job at a time; correctness does not
// depend on the pool size.
type Worker struct {
	broker   *broker.Client
	pipeline *Pipeline
	volume   *storage.Volume
	workers  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a worker pool over the given broker
func NewWorker(b *broker.Client, p *Pipeline, v *storage.Volume, workers int) *Worker {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		broker:   b,
		pipeline: p,
		volume:   v,
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the translation workers and the cleanup worker
func (w *Worker) Start() {
	logger.Log.Info("🔧 Starting translation workers",
		zap.Int("workers", w.workers),
	)

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.translationLoop(i)
	}

	w.wg.Add(1)
	go w.cleanupLoop()
}

// Stop signals all workers and waits for in-flight jobs to finish
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
}

// translationLoop pops translation jobs until shutdown
func (w *Worker) translationLoop(workerID int) {
	defer w.wg.Done()
	logger.Log.Info("Translation worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-w.ctx.Done():
			logger.Log.Info("Translation worker shutting down", zap.Int("worker_id", workerID))
			return
		default:
		}

		job, err := w.broker.DequeueTranslation(w.ctx, popTimeout)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			logger.Log.Error("Failed to dequeue translation job", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.pipeline.Process(w.ctx, job)
	}
}

// cleanupLoop pops cleanup jobs until shutdown. Cleanup failures are
// logged and never surfaced to clients.
func (w *Worker) cleanupLoop() {
	defer w.wg.Done()
	logger.Log.Info("Cleanup worker started")

	for {
		select {
		case <-w.ctx.Done():
			logger.Log.Info("Cleanup worker shutting down")
			return
		default:
		}

		payload, err := w.broker.DequeueCleanup(w.ctx, popTimeout)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			logger.Log.Error("Failed to dequeue cleanup job", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if payload == nil {
			continue
		}

		w.runCleanup(payload)
	}
}

// runCleanup removes a finished job's intermediate artifacts: the lyrics
// file, the alignment document and the stems directory. The persisted
// audio is never touched here.
func (w *Worker) runCleanup(payload *jobs.CleanupPayload) {
	logger.Log.Info("Cleaning up job artifacts",
		zap.String("lyrics", payload.LyricsPath),
		zap.String("alignment", payload.AlignmentPath),
		zap.String("stems_dir", payload.StemsDir),
	)
	w.volume.RemoveBestEffort(payload.LyricsPath, payload.AlignmentPath, payload.StemsDir)
}
