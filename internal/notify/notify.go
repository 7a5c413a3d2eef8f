package notify

import (
	"context"
	"log/slog"
)

// Subject is the subject line of upload notifications
const Subject = "New Image Upload"

// Message returns the notification body for an uploaded image
func Message(address string) string {
	return "A new image has been uploaded: " + address
}

// LogNotifier writes notifications to the log instead of a broker
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs each upload
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// NotifyUpload logs the upload notification
func (n *LogNotifier) NotifyUpload(ctx context.Context, address string) error {
	n.logger.InfoContext(ctx, Message(address), "subject", Subject, "address", address)
	return nil
}
