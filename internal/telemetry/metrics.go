package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/fitout"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Refresh metrics
	RefreshTotal        metric.Int64Counter
	RefreshErrorsTotal  metric.Int64Counter
	RefreshSkippedTotal metric.Int64Counter

	// Session lifecycle metrics
	SessionExpiredTotal metric.Int64Counter
	BroadcastsTotal     metric.Int64Counter

	// API call metrics
	RequestDuration metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.RefreshTotal, _ = meter.Int64Counter(
		"fitout.session.refresh.total",
		metric.WithDescription("Total number of session refresh calls sent to the API"),
		metric.WithUnit("{refresh}"),
	)

	m.RefreshErrorsTotal, _ = meter.Int64Counter(
		"fitout.session.refresh.errors.total",
		metric.WithDescription("Total number of failed session refresh calls"),
		metric.WithUnit("{error}"),
	)

	m.RefreshSkippedTotal, _ = meter.Int64Counter(
		"fitout.session.refresh.skipped.total",
		metric.WithDescription("Total number of refresh attempts skipped because one was already in flight"),
		metric.WithUnit("{refresh}"),
	)

	m.SessionExpiredTotal, _ = meter.Int64Counter(
		"fitout.session.expired.total",
		metric.WithDescription("Total number of session expired signals, by reason"),
		metric.WithUnit("{signal}"),
	)

	m.BroadcastsTotal, _ = meter.Int64Counter(
		"fitout.session.broadcasts.total",
		metric.WithDescription("Total number of session sync messages published, by type"),
		metric.WithUnit("{message}"),
	)

	m.RequestDuration, _ = meter.Float64Histogram(
		"fitout.http.request.duration",
		metric.WithDescription("Duration of API calls"),
		metric.WithUnit("ms"),
	)

	return m
}
