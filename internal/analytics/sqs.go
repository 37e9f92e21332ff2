package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsAPI interface {
	SendMessage(context.Context, *sqs.SendMessageInput, ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink publishes events as JSON messages for an out-of-band consumer.
type SQSSink struct {
	client   sqsAPI
	queueURL string
}

func NewSQSSink(client sqsAPI, queueURL string) *SQSSink {
	if client == nil {
		panic("analytics: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("analytics: SQS queueURL cannot be empty")
	}
	return &SQSSink{client: client, queueURL: queueURL}
}

func (s *SQSSink) Put(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("analytics: encode event: %w", err)
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"collection": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Collection)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("analytics: send SQS message: %w", err)
	}
	return nil
}
