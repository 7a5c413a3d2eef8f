package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultWorkflowName is the DBOS workflow enqueued for each upload
const DefaultWorkflowName = "image_uploaded"

// WorkflowStarter enqueues a workflow by name. *dbosruntime.Runtime satisfies it.
type WorkflowStarter interface {
	StartWorkflowByName(ctx context.Context, workflowName string, imageURL string, metadata map[string]interface{}) (string, error)
}

// QueueNotifier hands upload notifications to DBOS workers through the workflow queue.
// Workers in any language can pick them up by workflow name.
type QueueNotifier struct {
	starter      WorkflowStarter
	workflowName string
	logger       *slog.Logger
}

// NewQueueNotifier creates a notifier enqueuing workflowName (DefaultWorkflowName if empty)
func NewQueueNotifier(starter WorkflowStarter, workflowName string, logger *slog.Logger) *QueueNotifier {
	if workflowName == "" {
		workflowName = DefaultWorkflowName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueNotifier{
		starter:      starter,
		workflowName: workflowName,
		logger:       logger,
	}
}

// NotifyUpload enqueues the notification workflow for address
func (n *QueueNotifier) NotifyUpload(ctx context.Context, address string) error {
	workflowID, err := n.starter.StartWorkflowByName(ctx, n.workflowName, address, map[string]interface{}{
		"subject": Subject,
		"message": Message(address),
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue %s workflow: %w", n.workflowName, err)
	}

	n.logger.Info("notification workflow enqueued", "address", address, "workflow_id", workflowID)
	return nil
}
