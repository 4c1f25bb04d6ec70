// Package pipeline executes translation jobs: a multi-stage DAG of external
// analyzer calls with partial-failure semantics. Stem separation and
// transcript alignment are the critical path; pitch, volume and drum
// analysis degrade in-band instead of failing the job.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lyrasync/backend/internal/jobs"
	"github.com/lyrasync/backend/internal/logger"
	"github.com/lyrasync/backend/internal/mapper"
	"github.com/lyrasync/backend/internal/metrics"
	"github.com/lyrasync/backend/internal/services"
)

// Broker is the subset of broker operations the pipeline needs. The worker
// binary passes the Redis-backed client; tests pass a fake.
type Broker interface {
	MarkStarted(ctx context.Context, id string) error
	SetProgress(ctx context.Context, id, stage string) error
	MarkFinished(ctx context.Context, id string, result *jobs.Result) error
	MarkFailed(ctx context.Context, id, excInfo string) error
	EnqueueCleanup(ctx context.Context, payload jobs.CleanupPayload) error
}

// Clients bundles the analyzer clients a pipeline calls
type Clients struct {
	Separator *services.SeparatorClient
	Aligner   *services.AlignerClient
	F0        *services.F0Client
	RMS       *services.RMSClient
	Drums     *services.DrumClient
}

// Pipeline runs translation jobs end to end
type Pipeline struct {
	broker     Broker
	clients    Clients
	jobTimeout time.Duration
}

// New creates a pipeline
func New(broker Broker, clients Clients, jobTimeout time.Duration) *Pipeline {
	return &Pipeline{
		broker:     broker,
		clients:    clients,
		jobTimeout: jobTimeout,
	}
}

// stemResults collects the outputs of the concurrent analysis stage. The
// errgroup join makes every write happen-before the subsequent reads; the
// four slot pairs are written by four independent tasks.
type stemResults struct {
	alignmentPath  string
	alignmentError *services.ServiceError

	f0Data  map[string]*jobs.F0Series
	f0Info  string
	f0Error *services.ServiceError

	rmsData  *services.RMSResult
	rmsError *services.ServiceError

	drumData  []services.DrumOnset
	drumError *services.ServiceError
}

// Process executes one job and records its outcome against the broker.
// Fatal stage failures mark the job failed; degraded failures are folded
// into the result and the job still finishes.
func (p *Pipeline) Process(ctx context.Context, job *jobs.Job) {
	startTime := time.Now()
	logger.Log.Info("🎵 Processing translation job",
		logger.WithJobID(job.ID),
		zap.String("audio", job.Payload.AudioPath),
	)

	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	if err := p.broker.MarkStarted(ctx, job.ID); err != nil {
		logger.Log.Error("Failed to mark job started",
			logger.WithJobID(job.ID),
			zap.Error(err),
		)
		return
	}

	// Stage 1: stem separation (fatal on any failure)
	stems, stemsDir, ok := p.separate(ctx, job)
	if !ok {
		return
	}

	// Stage 2: alignment, F0, RMS and drums concurrently
	p.setProgress(ctx, job.ID, jobs.StageProcessing)
	results := p.analyzeStems(ctx, job, stems)

	if results.alignmentError != nil {
		p.fail(ctx, job, fmt.Sprintf("alignment failed: %s", results.alignmentError.Message))
		return
	}

	// Stage 3: transcript mapping (fatal on empty output)
	p.setProgress(ctx, job.ID, jobs.StageMapping)
	mapped, err := mapper.MapTranscript(results.alignmentPath, job.Payload.LyricsPath)
	if err != nil {
		p.fail(ctx, job, fmt.Sprintf("transcript mapping failed: %v", err))
		return
	}
	if len(mapped) == 0 {
		p.fail(ctx, job, "transcript mapping produced no lines")
		return
	}

	// Stage 4: assemble and persist the result
	p.setProgress(ctx, job.ID, jobs.StageFinalizing)
	result := p.assemble(job, mapped, results)

	if err := p.broker.MarkFinished(ctx, job.ID, result); err != nil {
		logger.Log.Error("Failed to store job result",
			logger.WithJobID(job.ID),
			zap.Error(err),
		)
		return
	}

	// Stage 5: schedule artifact cleanup. The persisted audio is excluded;
	// it backs the playback URL until the client deletes it.
	cleanup := jobs.CleanupPayload{
		LyricsPath:    job.Payload.LyricsPath,
		AlignmentPath: results.alignmentPath,
		StemsDir:      stemsDir,
	}
	if err := p.broker.EnqueueCleanup(ctx, cleanup); err != nil {
		logger.Log.Warn("Failed to enqueue cleanup job",
			logger.WithJobID(job.ID),
			zap.Error(err),
		)
	}

	metrics.Get().JobsTotal.WithLabelValues("finished").Inc()
	logger.Log.Info("✅ Translation job finished",
		logger.WithJobID(job.ID),
		zap.Duration("elapsed", time.Since(startTime)),
	)
}

// separate runs the stem separation stage. The vocals stem is mandatory:
// without it neither alignment nor the transcript can be produced.
func (p *Pipeline) separate(ctx context.Context, job *jobs.Job) (map[string]string, string, bool) {
	p.setProgress(ctx, job.ID, jobs.StageSeparating)
	stageStart := time.Now()

	stems, svcErr := p.clients.Separator.Separate(ctx, job.Payload.AudioPath)
	metrics.Get().PipelineStageDuration.WithLabelValues(jobs.StageSeparating).Observe(time.Since(stageStart).Seconds())
	if svcErr != nil {
		p.fail(ctx, job, fmt.Sprintf("stem separation failed: %s", svcErr.Message))
		return nil, "", false
	}

	vocals, ok := stems[services.StemVocals]
	if !ok || vocals == "" {
		p.fail(ctx, job, "stem separation returned no vocals stem")
		return nil, "", false
	}
	if _, err := os.Stat(vocals); err != nil {
		p.fail(ctx, job, fmt.Sprintf("vocals stem missing on shared volume: %s", vocals))
		return nil, "", false
	}

	// All stems land in one directory; remember it for cleanup
	stemsDir := filepath.Dir(vocals)
	return stems, stemsDir, true
}

// analyzeStems fans out alignment, F0, RMS and drum analysis and joins all
// of them before returning. Tasks write disjoint slots and always return
// nil so one failure never cancels the others mid-flight.
func (p *Pipeline) analyzeStems(ctx context.Context, job *jobs.Job, stems map[string]string) *stemResults {
	stageStart := time.Now()
	results := &stemResults{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		results.alignmentPath, results.alignmentError = p.clients.Aligner.Align(
			gctx, stems[services.StemVocals], job.Payload.LyricsPath)
		return nil
	})

	g.Go(func() error {
		results.f0Data, results.f0Info, results.f0Error = p.clients.F0.AnalyzeF0(gctx, stems)
		return nil
	})

	g.Go(func() error {
		tracks := map[string]string{"song": job.Payload.AudioPath}
		for stem, path := range stems {
			tracks[stem] = path
		}
		results.rmsData, results.rmsError = p.clients.RMS.AnalyzeRMS(gctx, tracks)
		return nil
	})

	if drums := stems[services.StemDrums]; drums != "" {
		g.Go(func() error {
			results.drumData, results.drumError = p.clients.Drums.AnalyzeDrums(gctx, drums)
			return nil
		})
	}

	g.Wait()
	metrics.Get().PipelineStageDuration.WithLabelValues(jobs.StageProcessing).Observe(time.Since(stageStart).Seconds())
	return results
}

// assemble builds the final result, folding degraded analyzer failures
// into in-band error reports
func (p *Pipeline) assemble(job *jobs.Job, mapped []jobs.MappedLine, results *stemResults) *jobs.Result {
	result := &jobs.Result{
		MappedResult:     mapped,
		AudioURL:         "/api/files/" + job.Payload.StoredAudioName,
		OriginalFilename: job.Payload.OriginalFilename,
	}

	switch {
	case results.f0Error != nil:
		logger.Log.Warn("F0 analysis degraded",
			logger.WithJobID(job.ID),
			zap.String("error", results.f0Error.Message),
		)
		result.F0Analysis = map[string]any{
			"error": results.f0Error.Message,
			"info":  "F0 analysis did not complete successfully.",
		}
	case results.f0Info != "":
		result.F0Analysis = map[string]any{"info": results.f0Info}
	default:
		result.F0Analysis = make(map[string]any, len(results.f0Data))
		for instrument, series := range results.f0Data {
			if series == nil {
				result.F0Analysis[instrument] = nil
			} else {
				result.F0Analysis[instrument] = series
			}
		}
	}

	if results.rmsError != nil {
		logger.Log.Warn("Volume analysis degraded",
			logger.WithJobID(job.ID),
			zap.String("error", results.rmsError.Message),
		)
		result.VolumeAnalysis = map[string]any{
			"error": results.rmsError.Message,
			"info":  "Volume analysis did not complete successfully.",
		}
	} else if results.rmsData != nil {
		result.VolumeAnalysis = results.rmsData
	}

	if results.drumError != nil {
		logger.Log.Warn("Drum analysis degraded",
			logger.WithJobID(job.ID),
			zap.String("error", results.drumError.Message),
		)
		result.DrumAnalysis = map[string]any{
			"error": results.drumError.Message,
			"info":  "Drum analysis did not complete successfully.",
		}
	} else if results.drumData != nil {
		result.DrumAnalysis = results.drumData
	}

	return result
}

// setProgress records the current stage for pollers; a write failure is
// not worth aborting the job over
func (p *Pipeline) setProgress(ctx context.Context, jobID, stage string) {
	if err := p.broker.SetProgress(ctx, jobID, stage); err != nil {
		logger.Log.Warn("Failed to record progress stage",
			logger.WithJobID(jobID),
			zap.String("stage", stage),
			zap.Error(err),
		)
	}
}

// fail marks the job failed with a human-readable cause. The failure is
// recorded even when the job's deadline has already passed. Stems stay on
// the shared volume; no cleanup is scheduled for failed jobs.
func (p *Pipeline) fail(ctx context.Context, job *jobs.Job, excInfo string) {
	ctx = context.WithoutCancel(ctx)
	logger.Log.Error("❌ Translation job failed",
		logger.WithJobID(job.ID),
		zap.String("cause", excInfo),
	)
	metrics.Get().JobsTotal.WithLabelValues("failed").Inc()

	if err := p.broker.MarkFailed(ctx, job.ID, excInfo); err != nil {
		logger.Log.Error("Failed to record job failure",
			logger.WithJobID(job.ID),
			zap.Error(err),
		)
	}
}
