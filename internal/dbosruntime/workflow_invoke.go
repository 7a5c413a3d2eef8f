package dbosruntime

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkflowInput is the request payload of an enqueued workflow
type WorkflowInput struct {
	ImageURL string                 `json:"image_url"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// StartWorkflowByName enqueues a DBOS workflow by name so workers in any
// language registered under that name can run it
func (r *Runtime) StartWorkflowByName(ctx context.Context, workflowName string, imageURL string, metadata map[string]interface{}) (string, error) {
	return enqueueWorkflow(ctx, r.db, r.config, workflowName, imageURL, metadata, time.Now())
}

func enqueueWorkflow(ctx context.Context, db *sql.DB, cfg Config, workflowName, imageURL string, metadata map[string]interface{}, now time.Time) (string, error) {
	workflowUUID := fmt.Sprintf("%s-%s", workflowName, uuid.New().String())

	inputJSON, err := json.Marshal(WorkflowInput{
		ImageURL: imageURL,
		Metadata: metadata,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal input: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	statusQuery := `
		INSERT INTO dbos.workflow_status (
			workflow_uuid,
			status,
			name,
			request,
			executor_id,
			created_at,
			updated_at,
			application_version,
			application_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	ts := now.UnixMilli()
	_, err = tx.ExecContext(ctx, statusQuery,
		workflowUUID,
		"PENDING",
		workflowName,
		string(inputJSON),
		"pending",
		ts,
		ts,
		cfg.ApplicationVersion,
		cfg.AppName,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert workflow: %w", err)
	}

	queueQuery := `
		INSERT INTO dbos.workflow_queue (
			workflow_uuid,
			queue_name,
			created_at_epoch_ms
		) VALUES ($1, $2, $3)
	`

	if _, err = tx.ExecContext(ctx, queueQuery, workflowUUID, cfg.QueueName, ts); err != nil {
		return "", fmt.Errorf("failed to enqueue workflow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit workflow: %w", err)
	}

	return workflowUUID, nil
}
