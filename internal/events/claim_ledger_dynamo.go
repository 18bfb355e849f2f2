package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type claimRecord struct {
	ClaimKey  string `dynamodbav:"claimKey"`
	TenantID  string `dynamodbav:"tenantId"`
	EventID   string `dynamodbav:"eventId"`
	Status    string `dynamodbav:"status"`
	ClaimedAt int64  `dynamodbav:"claimedAt"`
	ExpiresAt int64  `dynamodbav:"expiresAt"`
}

// DynamoClaimLedger claims with a conditional PutItem. expiresAt is the
// table's TTL attribute.
type DynamoClaimLedger struct {
	client    dynamoAPI
	tableName string
	lease     time.Duration
	now       func() time.Time
}

func NewDynamoClaimLedger(client dynamoAPI, tableName string, lease time.Duration) *DynamoClaimLedger {
	if client == nil {
		panic("events: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("events: table name cannot be empty")
	}
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	return &DynamoClaimLedger{client: client, tableName: tableName, lease: lease, now: time.Now}
}

func (l *DynamoClaimLedger) Claim(ctx context.Context, tenantID, eventID string) (bool, error) {
	now := l.now().UTC()
	item, err := attributevalue.MarshalMap(claimRecord{
		ClaimKey:  claimKey(tenantID, eventID),
		TenantID:  tenantID,
		EventID:   eventID,
		Status:    claimedValue,
		ClaimedAt: now.Unix(),
		ExpiresAt: now.Add(completedRetention).Unix(),
	})
	if err != nil {
		return false, fmt.Errorf("events: marshal claim: %w", err)
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(claimKey) OR (#status = :claimed AND claimedAt < :stale)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":claimed": &types.AttributeValueMemberS{Value: claimedValue},
			":stale":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(-l.lease).Unix(), 10)},
		},
	})
	if err != nil {
		var conditional *types.ConditionalCheckFailedException
		if errors.As(err, &conditional) {
			return false, nil
		}
		return false, fmt.Errorf("events: claim %s: %w", eventID, err)
	}
	return true, nil
}

func (l *DynamoClaimLedger) Complete(ctx context.Context, tenantID, eventID string) error {
	_, err := l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"claimKey": &types.AttributeValueMemberS{Value: claimKey(tenantID, eventID)},
		},
		UpdateExpression: aws.String("SET #status = :completed"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":completed": &types.AttributeValueMemberS{Value: completedValue},
		},
	})
	if err != nil {
		return fmt.Errorf("events: complete %s: %w", eventID, err)
	}
	return nil
}

func (l *DynamoClaimLedger) Release(ctx context.Context, tenantID, eventID string) error {
	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"claimKey": &types.AttributeValueMemberS{Value: claimKey(tenantID, eventID)},
		},
		ConditionExpression: aws.String("#status = :claimed"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":claimed": &types.AttributeValueMemberS{Value: claimedValue},
		},
	})
	if err != nil {
		var conditional *types.ConditionalCheckFailedException
		if errors.As(err, &conditional) {
			return nil
		}
		return fmt.Errorf("events: release %s: %w", eventID, err)
	}
	return nil
}
