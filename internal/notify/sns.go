package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// PublishAPI is the part of the SNS client used by SNSNotifier
type PublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes upload notifications to an SNS topic
type SNSNotifier struct {
	client   PublishAPI
	topicARN string
	logger   *slog.Logger
}

// NewSNSNotifier creates a notifier publishing to topicARN
func NewSNSNotifier(client PublishAPI, topicARN string, logger *slog.Logger) *SNSNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SNSNotifier{
		client:   client,
		topicARN: topicARN,
		logger:   logger,
	}
}

// NotifyUpload publishes a message about the image at address
func (n *SNSNotifier) NotifyUpload(ctx context.Context, address string) error {
	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(Subject),
		Message:  aws.String(Message(address)),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", n.topicARN, err)
	}

	n.logger.Info("SNS notification sent", "address", address, "message_id", aws.ToString(out.MessageId))
	return nil
}
