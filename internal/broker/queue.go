package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/lyrasync/backend/internal/jobs"
	"github.com/lyrasync/backend/internal/metrics"
)

const (
	// TranslationQueue is the durable FIFO of pending translation jobs
	TranslationQueue = "translations"
	// CleanupQueue carries artifact-removal jobs enqueued by finished workers
	CleanupQueue = "cleanup_files"

	// terminalRetention bounds how long a finished or failed job's record
	// survives before the broker reclaims it
	terminalRetention = 24 * time.Hour
)

// ErrNoSuchJob is returned when a job ID has no record in the broker
var ErrNoSuchJob = errors.New("no such job")

// ErrStatusConflict is returned when a write would move a job's status
// backward in its lifecycle
var ErrStatusConflict = errors.New("job status cannot move backward")

// ErrCorruptRecord is returned when a job record's stored JSON does not
// decode
var ErrCorruptRecord = errors.New("corrupt job record")

func jobKey(id string) string {
	return "job:" + id
}

// EnqueueTranslation persists the job record and pushes its ID onto the
// translation queue. The job ID doubles as the filesystem namespace prefix,
// so no cross-reference table is needed.
func (c *Client) EnqueueTranslation(ctx context.Context, job *jobs.Job, timeout time.Duration) error {
	ctx, span := otel.Tracer("broker").Start(ctx, "broker.enqueue")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", job.ID))

	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode job payload: %w", err)
	}

	start := time.Now()
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID),
		"status", string(jobs.StatusQueued),
		"payload", payload,
		"created_at", job.CreatedAt.UTC().Format(time.RFC3339Nano),
		"timeout_seconds", int64(timeout.Seconds()),
	)
	pipe.LPush(ctx, TranslationQueue, job.ID)
	_, err = pipe.Exec(ctx)
	recordOp("enqueue", start, err)

	if err != nil {
		span.SetStatus(otelcodes.Error, err.Error())
		span.RecordError(err)
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// DequeueTranslation blocks up to timeout for the next pending job and
// loads its record. Returns (nil, nil) when the wait times out. The BRPOP
// pop is atomic, so two workers never receive the same job.
func (c *Client) DequeueTranslation(ctx context.Context, timeout time.Duration) (*jobs.Job, error) {
	start := time.Now()
	res, err := c.rdb.BRPop(ctx, timeout, TranslationQueue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	recordOp("dequeue", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to pop translation queue: %w", err)
	}

	// BRPOP result is [queue, value]
	id := res[1]
	job, err := c.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("dequeued job %s has no record: %w", id, err)
	}
	return job, nil
}

// GetJob loads a job record by ID
func (c *Client) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	fields, err := c.rdb.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNoSuchJob
	}

	job := &jobs.Job{
		ID:            id,
		Status:        jobs.Status(fields["status"]),
		ProgressStage: fields["progress_stage"],
		ExcInfo:       fields["exc_info"],
	}

	if raw := fields["payload"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &job.Payload); err != nil {
			return nil, fmt.Errorf("%w: payload for job %s: %v", ErrCorruptRecord, id, err)
		}
	}
	if raw := fields["result"]; raw != "" {
		var result jobs.Result
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return nil, fmt.Errorf("%w: result for job %s: %v", ErrCorruptRecord, id, err)
		}
		job.Result = &result
	}
	if raw := fields["created_at"]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			job.CreatedAt = t
		}
	}
	if raw := fields["finished_at"]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			job.FinishedAt = &t
		}
	}

	return job, nil
}

// JobTimeout reads the per-job budget recorded at enqueue time
func (c *Client) JobTimeout(ctx context.Context, id string) (time.Duration, error) {
	seconds, err := c.rdb.HGet(ctx, jobKey(id), "timeout_seconds").Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if seconds <= 0 {
		return 0, nil
	}
	return time.Duration(seconds) * time.Second, nil
}

// MarkStarted transitions a job to started. The transition is guarded so a
// record can never move backward in its lifecycle.
func (c *Client) MarkStarted(ctx context.Context, id string) error {
	return c.transition(ctx, id, jobs.StatusStarted, nil)
}

// SetProgress records the worker's current stage for pollers
func (c *Client) SetProgress(ctx context.Context, id, stage string) error {
	start := time.Now()
	err := c.rdb.HSet(ctx, jobKey(id), "progress_stage", stage).Err()
	recordOp("set_progress", start, err)
	return err
}

// MarkFinished stores the result, transitions the job to finished and arms
// the retention TTL
func (c *Client) MarkFinished(ctx context.Context, id string, result *jobs.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result for job %s: %w", id, err)
	}
	return c.transition(ctx, id, jobs.StatusFinished, map[string]any{"result": raw})
}

// MarkFailed records the failure text and transitions the job to failed
func (c *Client) MarkFailed(ctx context.Context, id, excInfo string) error {
	if excInfo == "" {
		excInfo = "job failed with no recorded cause"
	}
	return c.transition(ctx, id, jobs.StatusFailed, map[string]any{"exc_info": excInfo})
}

// transition performs a guarded forward-only status write. Extra fields are
// written in the same transaction. Terminal states arm the retention TTL.
func (c *Client) transition(ctx context.Context, id string, next jobs.Status, extra map[string]any) error {
	ctx, span := otel.Tracer("broker").Start(ctx, "broker.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", id),
		attribute.String("job.status", string(next)),
	)

	start := time.Now()
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, jobKey(id), "status").Result()
		if err == redis.Nil {
			return ErrNoSuchJob
		}
		if err != nil {
			return err
		}
		if !jobs.Status(current).CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrStatusConflict, current, next)
		}

		fields := []any{"status", string(next)}
		for k, v := range extra {
			fields = append(fields, k, v)
		}
		if next.Terminal() {
			fields = append(fields, "finished_at", time.Now().UTC().Format(time.RFC3339Nano))
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, jobKey(id), fields...)
			if next.Terminal() {
				pipe.Expire(ctx, jobKey(id), terminalRetention)
			}
			return nil
		})
		return err
	}, jobKey(id))
	recordOp("transition", start, err)

	if err != nil {
		span.SetStatus(otelcodes.Error, err.Error())
		span.RecordError(err)
	}
	return err
}

// EnqueueCleanup pushes a cleanup job. Cleanup jobs carry their payload on
// the list directly; they have no per-job record or status.
func (c *Client) EnqueueCleanup(ctx context.Context, payload jobs.CleanupPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode cleanup payload: %w", err)
	}
	start := time.Now()
	err = c.rdb.LPush(ctx, CleanupQueue, raw).Err()
	recordOp("enqueue_cleanup", start, err)
	return err
}

// DequeueCleanup blocks up to timeout for the next cleanup job. Returns
// (nil, nil) when the wait times out.
func (c *Client) DequeueCleanup(ctx context.Context, timeout time.Duration) (*jobs.CleanupPayload, error) {
	res, err := c.rdb.BRPop(ctx, timeout, CleanupQueue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop cleanup queue: %w", err)
	}

	var payload jobs.CleanupPayload
	if err := json.Unmarshal([]byte(res[1]), &payload); err != nil {
		return nil, fmt.Errorf("corrupt cleanup payload: %w", err)
	}
	return &payload, nil
}

func recordOp(operation string, start time.Time, err error) {
	m := metrics.Get()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.BrokerOperationsTotal.WithLabelValues(operation, status).Inc()
	m.BrokerOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
