package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// PutItemAPI is the part of the DynamoDB client used by DynamoRepository
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoRepository stores records as items in a DynamoDB table
type DynamoRepository struct {
	client PutItemAPI
	table  string
}

// NewDynamoRepository creates a repository writing to table
func NewDynamoRepository(client PutItemAPI, table string) *DynamoRepository {
	return &DynamoRepository{
		client: client,
		table:  table,
	}
}

// Save writes rec as a single item keyed by imageId.
// The item attributes follow the dynamodbav tags on Record.
func (r *DynamoRepository) Save(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.ImageID, err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put item in %s: %w", r.table, err)
	}
	return nil
}
