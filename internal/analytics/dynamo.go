package analytics

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoSink writes events to a DynamoDB table keyed by eventId.
type DynamoSink struct {
	client    dynamoAPI
	tableName string
}

// NewDynamoSink builds a sink backed by the provided DynamoDB client.
func NewDynamoSink(client dynamoAPI, tableName string) *DynamoSink {
	if client == nil {
		panic("analytics: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("analytics: table name cannot be empty")
	}
	return &DynamoSink{client: client, tableName: tableName}
}

func (s *DynamoSink) Put(ctx context.Context, event Event) error {
	item, err := attributevalue.MarshalMap(event)
	if err != nil {
		return fmt.Errorf("analytics: marshal event: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(eventId)"),
	})
	if err != nil {
		return fmt.Errorf("analytics: put event: %w", err)
	}
	return nil
}
