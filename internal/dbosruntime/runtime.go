package dbosruntime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	_ "github.com/lib/pq"
)

// Runtime manages the DBOS runtime lifecycle
type Runtime struct {
	dbosContext dbos.DBOSContext
	queue       *dbos.WorkflowQueue
	config      Config
	db          *sql.DB
}

// NewRuntime creates a new DBOS runtime instance
func NewRuntime(ctx context.Context, cfg Config) (*Runtime, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DBOS_SYSTEM_DATABASE_URL is required")
	}
	cfg.WithDefaults()

	dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DBOS context: %w", err)
	}

	queue := dbos.NewWorkflowQueue(dbosCtx, cfg.QueueName)

	// Direct SQL connection used to enqueue workflows by name
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open DBOS database: %w", err)
	}

	return &Runtime{
		dbosContext: dbosCtx,
		queue:       &queue,
		config:      cfg,
		db:          db,
	}, nil
}

// Launch starts the DBOS runtime
func (r *Runtime) Launch() error {
	return dbos.Launch(r.dbosContext)
}

// Shutdown gracefully shuts down the DBOS runtime and closes the database
func (r *Runtime) Shutdown(timeout time.Duration) error {
	dbos.Shutdown(r.dbosContext, timeout)
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// QueueName returns the configured queue name
func (r *Runtime) QueueName() string {
	return r.config.QueueName
}
