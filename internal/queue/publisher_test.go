package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugspotter/internal/config"
	"bugspotter/internal/types"
)

// mockSQSSender captures SendMessage calls for test assertions.
type mockSQSSender struct {
	calls []*sqs.SendMessageInput
	err   error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

const testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789/identification-events"

func newTestPublisher(mock *mockSQSSender) *IdentificationPublisher {
	return NewIdentificationPublisher(mock, config.AWSConfig{IdentificationQueueURL: testQueueURL}, slog.Default())
}

func sampleEvent() types.IdentificationEvent {
	uid := int64(7)
	return types.IdentificationEvent{
		IdentificationID: 101,
		UserID:           &uid,
		Name:             "Seven-spot Ladybird",
		Type:             "Beetle",
		HarmLevel:        "Beneficial",
		Confidence:       92,
		ImageCount:       2,
		OccurredAt:       time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublishIdentification_SendsEnvelope(t *testing.T) {
	mock := &mockSQSSender{}
	ctx := types.WithRequestID(context.Background(), "req-abc")

	require.NoError(t, newTestPublisher(mock).PublishIdentification(ctx, sampleEvent()))
	require.Len(t, mock.calls, 1)

	call := mock.calls[0]
	assert.Equal(t, testQueueURL, *call.QueueUrl)
	assert.Equal(t, types.EventTypeIdentificationRecorded, *call.MessageAttributes["event_type"].StringValue)
	assert.Equal(t, "2", *call.MessageAttributes["image_count"].StringValue)
	assert.Equal(t, "Beneficial", *call.MessageAttributes["harm_level"].StringValue)

	var got types.IdentificationEvent
	require.NoError(t, json.Unmarshal([]byte(*call.MessageBody), &got))
	assert.NotEmpty(t, got.EventID)
	assert.Equal(t, "req-abc", got.TraceID)
	assert.Equal(t, int64(101), got.IdentificationID)
	assert.Equal(t, int64(7), *got.UserID)
}

func TestPublishIdentification_KeepsProvidedIDs(t *testing.T) {
	mock := &mockSQSSender{}
	evt := sampleEvent()
	evt.EventID = "evt-1"
	evt.TraceID = "trace-1"
	evt.HarmLevel = ""

	require.NoError(t, newTestPublisher(mock).PublishIdentification(context.Background(), evt))

	var got types.IdentificationEvent
	require.NoError(t, json.Unmarshal([]byte(*mock.calls[0].MessageBody), &got))
	assert.Equal(t, "evt-1", got.EventID)
	assert.Equal(t, "trace-1", got.TraceID)
	_, hasHarm := mock.calls[0].MessageAttributes["harm_level"]
	assert.False(t, hasHarm)
}

func TestPublishIdentification_SQSError(t *testing.T) {
	mock := &mockSQSSender{err: errors.New("throttled")}

	err := newTestPublisher(mock).PublishIdentification(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), testQueueURL)
	assert.ErrorContains(t, err, "throttled")
}

func TestNoopPublisher(t *testing.T) {
	assert.NoError(t, NoopPublisher{}.PublishIdentification(context.Background(), sampleEvent()))
}
