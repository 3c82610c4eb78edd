package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoClient is the subset of *dynamodb.Client methods used by Dynamo.
type DynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Dynamo is the shared Table for multi-instance deployments, backed by a
// DynamoDB table keyed on file_id. Every rule is a single conditional write,
// so the check and the mutation are one atomic step on the server side.
type Dynamo struct {
	client DynamoClient
	table  string
	ttl    time.Duration
}

// NewDynamo creates a DynamoDB-backed lock table.
func NewDynamo(client DynamoClient, table string) *Dynamo {
	return &Dynamo{client: client, table: table, ttl: DefaultTTL}
}

func (d *Dynamo) Get(ctx context.Context, fileID string) (*Lock, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		ConsistentRead: aws.Bool(true),
		Key:            fileKey(fileID),
	})
	if err != nil {
		return nil, fmt.Errorf("get lock for %s: %w", fileID, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var l Lock
	if err := attributevalue.UnmarshalMap(out.Item, &l); err != nil {
		return nil, fmt.Errorf("unmarshal lock for %s: %w", fileID, err)
	}
	if l.ExpiresAt <= time.Now().Unix() {
		return nil, nil
	}
	return &l, nil
}

func (d *Dynamo) Acquire(ctx context.Context, fileID, value string) error {
	now := time.Now().Unix()
	item, err := attributevalue.MarshalMap(Lock{
		FileID:    fileID,
		Value:     value,
		ExpiresAt: now + int64(d.ttl.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("marshal lock for %s: %w", fileID, err)
	}

	// Succeeds when no item exists, the existing lock has expired, or the
	// existing value matches (idempotent re-lock).
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(file_id) OR expires_at <= :now OR lock_value = :value"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now)},
			":value": &types.AttributeValueMemberS{Value: value},
		},
	})
	return d.mapConditional(ctx, fileID, err, "acquire")
}

func (d *Dynamo) Release(ctx context.Context, fileID, value string) error {
	now := time.Now().Unix()
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(d.table),
		Key:                 fileKey(fileID),
		ConditionExpression: aws.String("attribute_exists(file_id) AND lock_value = :value AND expires_at > :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now)},
			":value": &types.AttributeValueMemberS{Value: value},
		},
	})
	return d.mapConditional(ctx, fileID, err, "release")
}

func (d *Dynamo) Refresh(ctx context.Context, fileID, value string) error {
	now := time.Now().Unix()
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.table),
		Key:                 fileKey(fileID),
		UpdateExpression:    aws.String("SET expires_at = :exp"),
		ConditionExpression: aws.String("attribute_exists(file_id) AND lock_value = :value AND expires_at > :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now)},
			":exp":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now+int64(d.ttl.Seconds()))},
			":value": &types.AttributeValueMemberS{Value: value},
		},
	})
	return d.mapConditional(ctx, fileID, err, "refresh")
}

func (d *Dynamo) Transfer(ctx context.Context, fileID, oldValue, newValue string) error {
	now := time.Now().Unix()
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.table),
		Key:                 fileKey(fileID),
		UpdateExpression:    aws.String("SET lock_value = :new, expires_at = :exp"),
		ConditionExpression: aws.String("attribute_exists(file_id) AND lock_value = :old AND expires_at > :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now)},
			":exp": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now+int64(d.ttl.Seconds()))},
			":old": &types.AttributeValueMemberS{Value: oldValue},
			":new": &types.AttributeValueMemberS{Value: newValue},
		},
	})
	return d.mapConditional(ctx, fileID, err, "transfer")
}

// mapConditional turns a failed condition into a ConflictError carrying the
// current holder's value; any other error is passed through wrapped.
func (d *Dynamo) mapConditional(ctx context.Context, fileID string, err error, op string) error {
	if err == nil {
		return nil
	}
	var condFailed *types.ConditionalCheckFailedException
	if !errors.As(err, &condFailed) {
		return fmt.Errorf("%s lock for %s: %w", op, fileID, err)
	}
	current, getErr := d.Get(ctx, fileID)
	if getErr != nil {
		return fmt.Errorf("%s lock for %s: read current holder: %w", op, fileID, getErr)
	}
	conflict := &ConflictError{}
	if current != nil {
		conflict.Current = current.Value
	}
	return conflict
}

func fileKey(fileID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"file_id": &types.AttributeValueMemberS{Value: fileID},
	}
}
