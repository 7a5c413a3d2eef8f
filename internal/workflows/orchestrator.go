package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tendant/simple-image-pipeline/internal/metrics"
	"github.com/tendant/simple-image-pipeline/internal/workerpool"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

// Storer persists the original image and returns its durable address
type Storer interface {
	Store(ctx context.Context, img pipeline.Image) (string, error)
}

// MetadataRecorder extracts image metadata and persists it against the stored address
type MetadataRecorder interface {
	ExtractAndStore(ctx context.Context, img pipeline.Image, address string) error
}

// ThumbnailGenerator renders and persists a thumbnail of the image
type ThumbnailGenerator interface {
	Generate(ctx context.Context, img pipeline.Image) error
}

// Notifier announces a stored image
type Notifier interface {
	NotifyUpload(ctx context.Context, address string) error
}

// ProgressTracker receives checkpoint updates. *progress.Store satisfies it.
type ProgressTracker interface {
	SetProgress(jobID string, percent int)
	RemoveJob(jobID string)
}

// Stages groups the collaborators that implement each pipeline stage
type Stages struct {
	Storage    Storer
	Metadata   MetadataRecorder
	Thumbnails ThumbnailGenerator
	Notifier   Notifier
}

// job is the state threaded through one image's stage chain
type job struct {
	id       string
	image    pipeline.Image
	address  string
	progress int
}

type step struct {
	stage      string
	checkpoint int
	run        func(ctx context.Context, j *job) error
}

// Orchestrator drives images through store, metadata, thumbnail and notify
// on a shared worker pool, one stage at a time per job.
type Orchestrator struct {
	pool     *workerpool.Pool
	progress ProgressTracker
	stages   Stages
	steps    []step
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	inflight map[string]*Handle
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger used for stage events
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records job and stage metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator creates an orchestrator that runs stage work on pool and
// reports checkpoints to tracker
func NewOrchestrator(pool *workerpool.Pool, tracker ProgressTracker, stages Stages, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		pool:     pool,
		progress: tracker,
		stages:   stages,
		logger:   slog.Default(),
		inflight: make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(o)
	}

	// Checkpoints are fixed per stage; changing the stage list means
	// revisiting this schedule.
	o.steps = []step{
		{stage: pipeline.StageStore, checkpoint: pipeline.ProgressStored, run: o.store},
		{stage: pipeline.StageMetadata, checkpoint: pipeline.ProgressMetadataStored, run: o.extractMetadata},
		{stage: pipeline.StageThumbnail, checkpoint: pipeline.ProgressThumbnailStored, run: o.generateThumbnail},
		{stage: pipeline.StageNotify, checkpoint: pipeline.ProgressNotified, run: o.notify},
	}

	return o
}

// ProcessImage starts jobID through the pipeline and returns immediately.
// Progress for jobID reads 0 as soon as this returns.
func (o *Orchestrator) ProcessImage(jobID string, img pipeline.Image) (*Handle, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: job id is required", ErrInvalidRequest)
	}

	h := newHandle(jobID)

	o.mu.Lock()
	if _, ok := o.inflight[jobID]; ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, jobID)
	}
	o.inflight[jobID] = h
	o.mu.Unlock()

	o.progress.SetProgress(jobID, pipeline.ProgressCreated)

	j := &job{id: jobID, image: img, progress: pipeline.ProgressCreated}
	if err := o.pool.Go(func() { o.run(j, h) }); err != nil {
		// a rejected job was never started, so it leaves no progress behind
		o.progress.RemoveJob(jobID)
		o.forget(jobID)
		return nil, fmt.Errorf("failed to start job %s: %w", jobID, err)
	}

	o.logger.Info("job accepted",
		"job_id", jobID,
		"file_name", img.Filename,
		"size", img.Size(),
	)

	return h, nil
}

// InFlight returns the number of jobs that have not finished yet
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight)
}

// Shutdown stops accepting jobs and waits for in-flight jobs to finish.
// Jobs are never interrupted; if ctx ends first its error is returned.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	return o.pool.Shutdown(ctx)
}

func (o *Orchestrator) run(j *job, h *Handle) {
	o.metrics.JobSubmitted()

	var err error
	for _, s := range o.steps {
		if err = o.runStep(j, s); err != nil {
			break
		}
	}

	o.metrics.JobFinished(err)
	o.forget(j.id)
	if err != nil {
		o.logger.Error("job failed", "job_id", j.id, "progress", j.progress, "error", err)
	} else {
		o.logger.Info("job completed", "job_id", j.id, "address", j.address)
	}
	h.resolve(err)
}

// runStep executes one stage on a pool permit and advances progress on success
func (o *Orchestrator) runStep(j *job, s step) error {
	logger := o.logger.With("job_id", j.id, "stage", s.stage)
	start := time.Now()

	err := o.pool.Do(context.Background(), func(ctx context.Context) error {
		logger.Debug("stage started")
		if err := safeRun(ctx, j, s.run); err != nil {
			return err
		}
		return o.advance(j, s.checkpoint)
	})

	o.metrics.ObserveStage(s.stage, time.Since(start), err)
	if err != nil {
		logger.Error("stage failed", "error", err)
		return &StageError{JobID: j.id, Stage: s.stage, Progress: j.progress, Err: err}
	}

	logger.Info("stage committed", "progress", j.progress)
	return nil
}

// advance moves the job to checkpoint. Progress only moves forward through
// the sanctioned checkpoint values.
func (o *Orchestrator) advance(j *job, checkpoint int) error {
	if !pipeline.ValidCheckpoint(checkpoint) || checkpoint <= j.progress {
		return fmt.Errorf("%w: %d after %d", ErrInvalidCheckpoint, checkpoint, j.progress)
	}
	o.progress.SetProgress(j.id, checkpoint)
	j.progress = checkpoint
	return nil
}

func (o *Orchestrator) forget(jobID string) {
	o.mu.Lock()
	delete(o.inflight, jobID)
	o.mu.Unlock()
}

func (o *Orchestrator) store(ctx context.Context, j *job) error {
	address, err := o.stages.Storage.Store(ctx, j.image)
	if err != nil {
		return fmt.Errorf("store image: %w", err)
	}
	j.address = address
	return nil
}

func (o *Orchestrator) extractMetadata(ctx context.Context, j *job) error {
	if err := o.stages.Metadata.ExtractAndStore(ctx, j.image, j.address); err != nil {
		return fmt.Errorf("extract metadata: %w", err)
	}
	return nil
}

func (o *Orchestrator) generateThumbnail(ctx context.Context, j *job) error {
	if err := o.stages.Thumbnails.Generate(ctx, j.image); err != nil {
		return fmt.Errorf("generate thumbnail: %w", err)
	}
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, j *job) error {
	if err := o.stages.Notifier.NotifyUpload(ctx, j.address); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// safeRun turns a panicking collaborator into a stage error
func safeRun(ctx context.Context, j *job, fn func(context.Context, *job) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panicked: %v", r)
		}
	}()
	return fn(ctx, j)
}
