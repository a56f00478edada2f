// Package main is the entrypoint for the identification worker Lambda.
//
// It consumes IdentificationRecorded events from SQS and turns each batch
// into CloudWatch counts dimensioned by harm level and insect type, plus the
// queue lag of the oldest record. Records that cannot be decoded are
// reported as partial batch failures so SQS redelivers them and, eventually,
// moves them to the dead-letter queue.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/jonboulle/clockwork"
	"github.com/kelseyhightower/envconfig"

	"bugspotter/internal/observability"
	"bugspotter/internal/types"
)

const unknownDimension = "Unknown"

// MetricPublisher is satisfied by observability.CloudWatchRecorder.
type MetricPublisher interface {
	Put(ctx context.Context, data []observability.Datum)
}

type Handler struct {
	metrics MetricPublisher
	clock   clockwork.Clock
	logger  *slog.Logger
}

type countKey struct {
	harmLevel string
	kind      string
}

// Handle processes one SQS batch.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var response events.SQSEventResponse
	counts := make(map[countKey]int)
	var oldest time.Time

	for _, record := range sqsEvent.Records {
		evt, err := decodeEvent(record)
		if err != nil {
			h.logger.ErrorContext(ctx, "malformed identification event",
				"message_id", record.MessageId,
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
			continue
		}

		counts[countKey{harmLevel: dimensionValue(evt.HarmLevel), kind: dimensionValue(evt.Type)}]++

		if sent, ok := sentAt(record); ok && (oldest.IsZero() || sent.Before(oldest)) {
			oldest = sent
		}
	}

	data := make([]observability.Datum, 0, len(counts)+1)
	for key, n := range counts {
		data = append(data, observability.Datum{
			Name:  observability.MetricIdentifications,
			Value: float64(n),
			Unit:  cwtypes.StandardUnitCount,
			Dimensions: map[string]string{
				observability.DimHarmLevel:  key.harmLevel,
				observability.DimInsectType: key.kind,
			},
		})
	}
	if !oldest.IsZero() {
		lag := h.clock.Since(oldest)
		data = append(data, observability.Datum{
			Name:  observability.MetricIdentifyQueueLag,
			Value: float64(lag.Milliseconds()),
			Unit:  cwtypes.StandardUnitMilliseconds,
		})
	}
	if len(data) > 0 {
		h.metrics.Put(ctx, data)
	}

	h.logger.InfoContext(ctx, "identification batch processed",
		"records", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
	return response, nil
}

func decodeEvent(record events.SQSMessage) (types.IdentificationEvent, error) {
	var evt types.IdentificationEvent
	if attr, ok := record.MessageAttributes["event_type"]; ok && attr.StringValue != nil &&
		*attr.StringValue != types.EventTypeIdentificationRecorded {
		return evt, fmt.Errorf("unexpected event type %q", *attr.StringValue)
	}
	if err := json.Unmarshal([]byte(record.Body), &evt); err != nil {
		return evt, fmt.Errorf("decoding body: %w", err)
	}
	if evt.IdentificationID <= 0 {
		return evt, fmt.Errorf("missing identification_id")
	}
	return evt, nil
}

// dimensionValue title-cases the model's free-text label so "low" and "Low"
// land in the same series.
func dimensionValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return unknownDimension
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// sentAt reads the SentTimestamp system attribute (epoch milliseconds).
func sentAt(record events.SQSMessage) (time.Time, bool) {
	ms, err := strconv.ParseInt(record.Attributes["SentTimestamp"], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

type workerConfig struct {
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
	EndpointURL     string `envconfig:"AWS_ENDPOINT_URL"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"BugSpotter"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("identification worker initializing (cold start)")

	var cfg workerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}
	cw := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})

	handler := &Handler{
		metrics: observability.NewCloudWatchRecorder(cw, cfg.MetricNamespace, logger),
		clock:   clockwork.NewRealClock(),
		logger:  logger,
	}

	logger.Info("identification worker initialized", "metric_namespace", cfg.MetricNamespace)
	lambda.Start(handler.Handle)
}
