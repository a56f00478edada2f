// Package queue publishes domain events to SQS for the background workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"bugspotter/internal/config"
	"bugspotter/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// IdentificationPublisher sends IdentificationRecorded events to the
// identification events queue.
type IdentificationPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewIdentificationPublisher creates a publisher for the queue configured in awsCfg.
func NewIdentificationPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *IdentificationPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentificationPublisher{
		client:   client,
		queueURL: awsCfg.IdentificationQueueURL,
		logger:   logger,
	}
}

// PublishIdentification fills in EventID and TraceID when empty and enqueues
// the event. The event type travels as a message attribute so consumers can
// filter without decoding the body.
func (p *IdentificationPublisher) PublishIdentification(ctx context.Context, evt types.IdentificationEvent) error {
	if evt.EventID == "" {
		evt.EventID = uuid.New().String()
	}
	if evt.TraceID == "" {
		evt.TraceID = types.GetRequestID(ctx)
		if evt.TraceID == "" {
			evt.TraceID = uuid.New().String()
		}
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal IdentificationEvent: %w", err)
	}

	attrs := map[string]sqsTypes.MessageAttributeValue{
		"event_type": {
			DataType:    aws.String("String"),
			StringValue: aws.String(types.EventTypeIdentificationRecorded),
		},
		"image_count": {
			DataType:    aws.String("Number"),
			StringValue: aws.String(strconv.Itoa(evt.ImageCount)),
		},
	}
	if evt.HarmLevel != "" {
		attrs["harm_level"] = sqsTypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(evt.HarmLevel),
		}
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("queue: failed to send IdentificationEvent to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "identification event sent",
		"queue_url", p.queueURL,
		"event_id", evt.EventID,
		"trace_id", evt.TraceID,
		"identification_id", evt.IdentificationID,
	)
	return nil
}

// NoopPublisher drops events. It is used when no queue is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishIdentification(context.Context, types.IdentificationEvent) error {
	return nil
}
