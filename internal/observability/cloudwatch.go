package observability

import (
	"context"
	"log/slog"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatch metric and dimension names used by the background workers.
const (
	MetricSubscriptionsExpired = "SubscriptionsExpired"
	MetricSessionsPurged       = "SessionsPurged"
	MetricIdentifications      = "Identifications"
	MetricIdentifyQueueLag     = "IdentificationQueueLag"

	DimHarmLevel  = "HarmLevel"
	DimInsectType = "InsectType"
)

// maxDatumsPerCall is the PutMetricData limit per request.
const maxDatumsPerCall = 1000

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Datum is one CloudWatch data point.
type Datum struct {
	Name       string
	Value      float64
	Unit       cwtypes.StandardUnit
	Dimensions map[string]string
}

// CloudWatchRecorder publishes custom metrics from the Lambda workers.
// Failures are logged and swallowed; metrics never fail a job.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger}
}

// Count records a single count metric.
func (r *CloudWatchRecorder) Count(ctx context.Context, name string, value float64, dims map[string]string) {
	r.Put(ctx, []Datum{{Name: name, Value: value, Unit: cwtypes.StandardUnitCount, Dimensions: dims}})
}

// Put sends data in as few calls as the API allows.
func (r *CloudWatchRecorder) Put(ctx context.Context, data []Datum) {
	for start := 0; start < len(data); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(data))

		batch := make([]cwtypes.MetricDatum, 0, end-start)
		for _, d := range data[start:end] {
			batch = append(batch, toMetricDatum(d))
		}

		_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(r.namespace),
			MetricData: batch,
		})
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to publish CloudWatch metrics",
				"namespace", r.namespace,
				"count", len(batch),
				"error", err,
			)
		}
	}
}

func toMetricDatum(d Datum) cwtypes.MetricDatum {
	unit := d.Unit
	if unit == "" {
		unit = cwtypes.StandardUnitCount
	}

	names := make([]string, 0, len(d.Dimensions))
	for name := range d.Dimensions {
		names = append(names, name)
	}
	sort.Strings(names)

	dims := make([]cwtypes.Dimension, 0, len(names))
	for _, name := range names {
		dims = append(dims, cwtypes.Dimension{
			Name:  aws.String(name),
			Value: aws.String(d.Dimensions[name]),
		})
	}

	return cwtypes.MetricDatum{
		MetricName: aws.String(d.Name),
		Value:      aws.Float64(d.Value),
		Unit:       unit,
		Dimensions: dims,
	}
}
