// Package observability holds the Prometheus collectors shared by the API.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bugspotter"

// Metrics holds the Prometheus counters and histograms for the API process.
type Metrics struct {
	// HTTP
	HTTPRequests *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration *prometheus.HistogramVec // labels: method, route

	// Weather and activity
	WeatherSource       *prometheus.CounterVec // labels: source={live,mock}
	WeatherCache        *prometheus.CounterVec // labels: result={hit,miss,error}
	ActivityPredictions *prometheus.CounterVec // labels: overall={low,moderate,high}
	ActivityVsSeason    *prometheus.CounterVec // labels: relation={above,at,below}

	// Identification
	Identifications    *prometheus.CounterVec // labels: outcome={success,failed,quota_exceeded}
	IdentifyDuration   prometheus.Histogram
	EventPublishErrors prometheus.Counter

	// Billing
	SubscriptionsCreated *prometheus.CounterVec // labels: plan, channel={googlepay,stripe}
	StripeWebhooks       *prometheus.CounterVec // labels: event_type, outcome
}

func build() *Metrics {
	return &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		WeatherSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_readings_total",
			Help:      "Weather readings served, by source.",
		}, []string{"source"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cache_total",
			Help:      "Weather cache lookups by result.",
		}, []string{"result"}),
		ActivityPredictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_predictions_total",
			Help:      "Insect activity predictions by overall level.",
		}, []string{"overall"}),
		ActivityVsSeason: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_vs_season_total",
			Help:      "Predictions whose weather-driven overall level is above, at or below the seasonal baseline.",
		}, []string{"relation"}),
		Identifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identifications_total",
			Help:      "Identification attempts by outcome.",
		}, []string{"outcome"}),
		IdentifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "identify_duration_seconds",
			Help:      "Time spent in the vision model per identification.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32},
		}),
		EventPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Identification events that could not be queued.",
		}),
		SubscriptionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_created_total",
			Help:      "Subscriptions created by plan and payment channel.",
		}, []string{"plan", "channel"}),
		StripeWebhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stripe_webhooks_total",
			Help:      "Verified Stripe webhook events by type and outcome.",
		}, []string{"event_type", "outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.HTTPRequests,
		m.HTTPDuration,
		m.WeatherSource,
		m.WeatherCache,
		m.ActivityPredictions,
		m.ActivityVsSeason,
		m.Identifications,
		m.IdentifyDuration,
		m.EventPublishErrors,
		m.SubscriptionsCreated,
		m.StripeWebhooks,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := build()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsWithRegistry registers the metrics on reg instead of the default
// registry. Tests pass a fresh prometheus.NewRegistry().
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := build()
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return build()
}
