package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tendant/simple-content/pkg/simplecontent"
	"github.com/tendant/simple-content/pkg/simplecontent/presets"

	"github.com/tendant/simple-image-pipeline/internal/config"
	"github.com/tendant/simple-image-pipeline/internal/dbosruntime"
	"github.com/tendant/simple-image-pipeline/internal/handlers"
	"github.com/tendant/simple-image-pipeline/internal/metadata"
	"github.com/tendant/simple-image-pipeline/internal/metrics"
	"github.com/tendant/simple-image-pipeline/internal/notify"
	"github.com/tendant/simple-image-pipeline/internal/progress"
	"github.com/tendant/simple-image-pipeline/internal/storage"
	"github.com/tendant/simple-image-pipeline/internal/thumbnail"
	"github.com/tendant/simple-image-pipeline/internal/workerpool"
	"github.com/tendant/simple-image-pipeline/internal/workflows"
)

// Owner and tenant recorded on uploads to simple-content
var (
	ContentOwnerID  = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	ContentTenantID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

// Runner wires the progress store, orchestrator and backends selected by config
type Runner struct {
	cfg          *config.Config
	logger       *slog.Logger
	progress     *progress.Store
	pool         *workerpool.Pool
	orchestrator *workflows.Orchestrator
	registry     *prometheus.Registry
	files        *storage.FilesystemStorage

	contentService simplecontent.Service
	closers        []func() error
}

// Option configures a Runner
type Option func(*Runner)

// WithContentService uses svc for the content storage backend instead of an embedded development service
func WithContentService(svc simplecontent.Service) Option {
	return func(r *Runner) {
		r.contentService = svc
	}
}

// New builds the pipeline described by cfg
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runner{
		cfg:      cfg,
		logger:   logger,
		progress: progress.NewStore(),
		pool:     workerpool.New(cfg.Workers),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.build(ctx); err != nil {
		r.close()
		return nil, err
	}
	return r, nil
}

func (r *Runner) build(ctx context.Context) error {
	var awsCfg aws.Config
	if r.cfg.NeedsAWS() {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(r.cfg.AWSRegion))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
	}

	objects, err := r.buildObjectStore(awsCfg)
	if err != nil {
		return err
	}

	repo, err := r.buildMetadataRepository(ctx, awsCfg)
	if err != nil {
		return err
	}

	notifier, err := r.buildNotifier(ctx, awsCfg)
	if err != nil {
		return err
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(r.registry)
	m.TrackGauge("tracked_jobs", "Jobs with a progress entry.", r.progress.Len)
	m.TrackGauge("busy_workers", "Worker pool permits currently held by a stage.", r.pool.Busy)

	r.orchestrator = workflows.NewOrchestrator(r.pool, r.progress, workflows.Stages{
		Storage:  storage.NewImageStore(objects, r.logger),
		Metadata: metadata.NewService(repo, r.logger),
		Thumbnails: thumbnail.NewGenerator(objects,
			thumbnail.WithSize(r.cfg.ThumbnailWidth, r.cfg.ThumbnailHeight),
			thumbnail.WithLogger(r.logger),
		),
		Notifier: notifier,
	}, workflows.WithLogger(r.logger), workflows.WithMetrics(m))

	r.logger.Info("pipeline ready",
		"workers", r.pool.Size(),
		"storage", r.cfg.StorageBackend,
		"metadata", r.cfg.MetadataBackend,
		"notifier", r.cfg.Notifier,
	)
	return nil
}

func (r *Runner) buildObjectStore(awsCfg aws.Config) (storage.ObjectStore, error) {
	switch r.cfg.StorageBackend {
	case config.StorageFilesystem:
		fs, err := storage.NewFilesystemStorage(r.cfg.StorageDir, r.cfg.StorageBaseURL)
		if err != nil {
			return nil, err
		}
		r.files = fs
		return fs, nil
	case config.StorageHTTP:
		return storage.NewHTTPStorage(r.cfg.ContentAPIURL, r.cfg.StorageBaseURL), nil
	case config.StorageContent:
		if r.contentService == nil {
			svc, cleanup, err := presets.NewDevelopment(presets.WithDevStorage(r.cfg.StorageDir))
			if err != nil {
				return nil, fmt.Errorf("failed to initialize simple-content service: %w", err)
			}
			r.contentService = svc
			r.closers = append(r.closers, func() error { cleanup(); return nil })
		}
		return storage.NewContentStorage(r.contentService, ContentOwnerID, ContentTenantID, r.cfg.StorageBaseURL), nil
	case config.StorageS3:
		return storage.NewS3Storage(s3.NewFromConfig(awsCfg), r.cfg.S3Bucket, r.cfg.StorageBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", r.cfg.StorageBackend)
	}
}

func (r *Runner) buildMetadataRepository(ctx context.Context, awsCfg aws.Config) (metadata.Repository, error) {
	switch r.cfg.MetadataBackend {
	case config.MetadataSQLite:
		if dir := filepath.Dir(r.cfg.MetadataDatabaseURL); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create metadata directory: %w", err)
			}
		}
		repo, err := metadata.OpenSQLite(ctx, r.cfg.MetadataDatabaseURL)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, repo.Close)
		return repo, nil
	case config.MetadataPostgres:
		repo, err := metadata.OpenPostgres(ctx, r.cfg.MetadataDatabaseURL)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, repo.Close)
		return repo, nil
	case config.MetadataDynamoDB:
		return metadata.NewDynamoRepository(dynamodb.NewFromConfig(awsCfg), r.cfg.DynamoDBTable), nil
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", r.cfg.MetadataBackend)
	}
}

func (r *Runner) buildNotifier(ctx context.Context, awsCfg aws.Config) (workflows.Notifier, error) {
	switch r.cfg.Notifier {
	case config.NotifierLog:
		return notify.NewLogNotifier(r.logger), nil
	case config.NotifierSNS:
		return notify.NewSNSNotifier(sns.NewFromConfig(awsCfg), r.cfg.SNSTopicARN, r.logger), nil
	case config.NotifierDBOS:
		rt, err := dbosruntime.NewRuntime(ctx, dbosruntime.Config{
			DatabaseURL:        r.cfg.DBOSDatabaseURL,
			QueueName:          r.cfg.DBOSQueueName,
			ApplicationVersion: r.cfg.DBOSApplicationVersion,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
		}
		if err := r.launchRuntime(rt); err != nil {
			return nil, err
		}
		r.logger.Info("DBOS runtime initialized", "queue", rt.QueueName())
		return notify.NewQueueNotifier(rt, notify.DefaultWorkflowName, r.logger), nil
	default:
		return nil, fmt.Errorf("unknown notifier %q", r.cfg.Notifier)
	}
}

// runtimeLifecycle is the part of *dbosruntime.Runtime the runner starts and stops
type runtimeLifecycle interface {
	Launch() error
	Shutdown(timeout time.Duration) error
}

// launchRuntime launches rt. Its shutdown is registered first so a failed
// launch still releases the DBOS context and database handle.
func (r *Runner) launchRuntime(rt runtimeLifecycle) error {
	r.closers = append(r.closers, func() error { return rt.Shutdown(10 * time.Second) })
	if err := rt.Launch(); err != nil {
		return fmt.Errorf("failed to launch DBOS: %w", err)
	}
	return nil
}

// Orchestrator returns the pipeline orchestrator
func (r *Runner) Orchestrator() *workflows.Orchestrator {
	return r.orchestrator
}

// Progress returns the progress store
func (r *Runner) Progress() *progress.Store {
	return r.progress
}

// Registry returns the Prometheus registry holding the pipeline metrics
func (r *Runner) Registry() *prometheus.Registry {
	return r.registry
}

// Handler returns the HTTP API for this pipeline
func (r *Runner) Handler() http.Handler {
	opts := []handlers.Option{
		handlers.WithMetrics(r.registry),
		handlers.WithMaxUploadBytes(r.cfg.MaxUploadBytes),
		handlers.WithLogger(r.logger),
	}
	if r.files != nil {
		opts = append(opts, handlers.WithFiles(r.files))
	}
	return handlers.New(r.orchestrator, r.progress, opts...).Routes()
}

// Shutdown waits for in-flight jobs, then releases backend resources
func (r *Runner) Shutdown(ctx context.Context) error {
	var err error
	if r.orchestrator != nil {
		err = r.orchestrator.Shutdown(ctx)
	}
	return errors.Join(err, r.close())
}

func (r *Runner) close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
