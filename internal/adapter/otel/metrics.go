package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "eventweb"

// Metrics holds the eventweb metric instruments.
type Metrics struct {
	Problems        metric.Int64Counter
	Commands        metric.Int64Counter
	CommandDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates all metric instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Problems, err = meter.Int64Counter("eventweb.http.problems",
		metric.WithDescription("Number of Problem Details responses"))
	if err != nil {
		return nil, err
	}

	m.Commands, err = meter.Int64Counter("eventweb.commands",
		metric.WithDescription("Number of handled commands"))
	if err != nil {
		return nil, err
	}

	m.CommandDuration, err = meter.Float64Histogram("eventweb.command.duration_seconds",
		metric.WithDescription("Command handling duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordProblem counts a problem response by status code.
func (m *Metrics) RecordProblem(ctx context.Context, status int) {
	m.Problems.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("http.response.status_code", status),
	))
}

// RecordCommand counts a handled command and its duration. outcome is "ok"
// when err is nil, "error" otherwise.
func (m *Metrics) RecordCommand(ctx context.Context, command string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	)
	m.Commands.Add(ctx, 1, attrs)
	m.CommandDuration.Record(ctx, elapsed.Seconds(), attrs)
}
