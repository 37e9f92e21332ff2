package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wa-navigator/internal/observability/metrics"
	"github.com/wolfman30/wa-navigator/pkg/logging"
)

type memorySink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *memorySink) Put(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func (s *memorySink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

type panicSink struct{}

func (panicSink) Put(context.Context, Event) error { panic("boom") }

type blockingSink struct{ sawDeadline chan bool }

func (s blockingSink) Put(ctx context.Context, _ Event) error {
	_, ok := ctx.Deadline()
	s.sawDeadline <- ok
	<-ctx.Done()
	return ctx.Err()
}

type mockDynamo struct {
	putInput *dynamodb.PutItemInput
	err      error
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = in
	return &dynamodb.PutItemOutput{}, m.err
}

type mockSQS struct {
	input *sqs.SendMessageInput
}

func (m *mockSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.input = in
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

func TestRecorderWritesCollections(t *testing.T) {
	sink := &memorySink{}
	r := NewRecorder(sink, WithLogger(logging.Discard()))

	r.RecordInteraction("1555", "hi", "text", time.Unix(1700000000, 0))
	r.RecordNavigationRequest("1555", "", "", "ROUTE_PLANNING")
	r.RecordEvent("state_transition", "1555", map[string]string{"from": "WELCOME", "to": "MAIN_MENU"})
	r.Wait()

	events := sink.snapshot()
	require.Len(t, events, 3)
	byCollection := map[Collection]Event{}
	for _, e := range events {
		byCollection[e.Collection] = e
		assert.Equal(t, "whatsapp", e.Platform)
		assert.NotEmpty(t, e.EventID)
		assert.NotZero(t, e.ExpiresAt)
	}
	assert.Equal(t, "hi", byCollection[CollectionInteractions].Data["messageText"])
	assert.Equal(t, "2023-11-14T22:13:20Z", byCollection[CollectionInteractions].Data["timestamp"])
	assert.Equal(t, "ROUTE_PLANNING", byCollection[CollectionNavigation].Data["requestType"])
	assert.Equal(t, "MAIN_MENU", byCollection[CollectionEvents].Data["to"])
}

func TestRecorderSwallowsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewChatbotMetrics(reg)

	failing := NewRecorder(&memorySink{err: errors.New("throttled")}, WithLogger(logging.Discard()), WithMetrics(m))
	failing.RecordEvent("x", "1", nil)
	failing.Wait()

	panicking := NewRecorder(panicSink{}, WithLogger(logging.Discard()), WithMetrics(m))
	assert.NotPanics(t, func() {
		panicking.RecordEvent("x", "1", nil)
		panicking.Wait()
	})

	families, err := reg.Gather()
	require.NoError(t, err)
	var failures float64
	for _, f := range families {
		if f.GetName() != "wa_navigator_analytics_events_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "status" && label.GetValue() == "error" {
					failures += metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, float64(2), failures)
}

func TestRecorderAppliesTimeout(t *testing.T) {
	sink := blockingSink{sawDeadline: make(chan bool, 1)}
	r := NewRecorder(sink, WithLogger(logging.Discard()), WithTimeout(20*time.Millisecond))

	r.RecordEvent("x", "1", nil)
	assert.True(t, <-sink.sawDeadline)
	r.Wait()
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordInteraction("1", "hi", "text", time.Time{})
		r.RecordNavigationRequest("1", "", "", "LOCATION_SEARCH")
		r.RecordEvent("x", "1", nil)
		r.Wait()
	})
}

func TestDynamoSinkPut(t *testing.T) {
	client := &mockDynamo{}
	sink := NewDynamoSink(client, "chatbot_analytics")

	err := sink.Put(context.Background(), Event{EventID: "e-1", Collection: CollectionNavigation, EventType: "navigation_request", Platform: "whatsapp"})
	require.NoError(t, err)
	require.NotNil(t, client.putInput)
	assert.Equal(t, "chatbot_analytics", aws.ToString(client.putInput.TableName))
	assert.Equal(t, "attribute_not_exists(eventId)", aws.ToString(client.putInput.ConditionExpression))

	var stored Event
	require.NoError(t, attributevalue.UnmarshalMap(client.putInput.Item, &stored))
	assert.Equal(t, "e-1", stored.EventID)
	assert.Equal(t, CollectionNavigation, stored.Collection)

	client.err = errors.New("denied")
	require.Error(t, sink.Put(context.Background(), Event{EventID: "e-2"}))
}

func TestSQSSinkPut(t *testing.T) {
	client := &mockSQS{}
	sink := NewSQSSink(client, "https://sqs.local/queue")

	require.NoError(t, sink.Put(context.Background(), Event{EventID: "e-1", Collection: CollectionInteractions}))
	require.NotNil(t, client.input)
	assert.Equal(t, "https://sqs.local/queue", aws.ToString(client.input.QueueUrl))
	assert.Equal(t, "user_interactions", aws.ToString(client.input.MessageAttributes["collection"].StringValue))

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.input.MessageBody)), &decoded))
	assert.Equal(t, "e-1", decoded.EventID)
}

func TestSinkConstructorsPanicOnMissingDeps(t *testing.T) {
	assert.Panics(t, func() { NewDynamoSink(nil, "t") })
	assert.Panics(t, func() { NewDynamoSink(&mockDynamo{}, "") })
	assert.Panics(t, func() { NewSQSSink(nil, "q") })
	assert.Panics(t, func() { NewSQSSink(&mockSQS{}, "") })
}
