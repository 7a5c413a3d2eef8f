package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage(t *testing.T) {
	assert.Equal(t, "A new image has been uploaded: http://s3.amazonaws.com/dummy/test.jpg", Message("http://s3.amazonaws.com/dummy/test.jpg"))
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(nil).NotifyUpload(context.Background(), "addr"))
}

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSNSNotifier_NotifyUpload(t *testing.T) {
	client := &fakeSNS{}
	n := NewSNSNotifier(client, "arn:aws:sns:us-east-1:123456789012:uploads", nil)

	require.NoError(t, n.NotifyUpload(context.Background(), "http://s3.amazonaws.com/dummy/test.jpg"))

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:uploads", *in.TopicArn)
	assert.Equal(t, Subject, *in.Subject)
	assert.Equal(t, "A new image has been uploaded: http://s3.amazonaws.com/dummy/test.jpg", *in.Message)
}

func TestSNSNotifier_PublishError(t *testing.T) {
	boom := errors.New("topic not found")
	n := NewSNSNotifier(&fakeSNS{err: boom}, "arn", nil)

	assert.ErrorIs(t, n.NotifyUpload(context.Background(), "addr"), boom)
}

type fakeStarter struct {
	name     string
	imageURL string
	metadata map[string]interface{}
	err      error
}

func (f *fakeStarter) StartWorkflowByName(ctx context.Context, workflowName string, imageURL string, metadata map[string]interface{}) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.name, f.imageURL, f.metadata = workflowName, imageURL, metadata
	return workflowName + "-1", nil
}

func TestQueueNotifier_NotifyUpload(t *testing.T) {
	starter := &fakeStarter{}
	n := NewQueueNotifier(starter, "", nil)

	require.NoError(t, n.NotifyUpload(context.Background(), "addr-1"))

	assert.Equal(t, DefaultWorkflowName, starter.name)
	assert.Equal(t, "addr-1", starter.imageURL)
	assert.Equal(t, Subject, starter.metadata["subject"])
	assert.Equal(t, Message("addr-1"), starter.metadata["message"])
}

func TestQueueNotifier_EnqueueError(t *testing.T) {
	boom := errors.New("db down")
	n := NewQueueNotifier(&fakeStarter{err: boom}, "custom", nil)

	err := n.NotifyUpload(context.Background(), "addr")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "custom")
}
