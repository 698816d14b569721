package mfcc

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/zrma/melcep/mfcc"

var computeBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

type metrics struct {
	frames     metric.Int64Counter
	duration   metric.Float64Histogram
	degenerate metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &metrics{}

	if met.frames, err = m.Int64Counter("melcep.frames",
		metric.WithDescription("Frames turned into feature columns."),
		metric.WithUnit("{frame}"),
	); err != nil {
		return nil, err
	}
	if met.duration, err = m.Float64Histogram("melcep.compute.duration",
		metric.WithDescription("Wall time of one feature computation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(computeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.degenerate, err = m.Int64Counter("melcep.filterbank.degenerate",
		metric.WithDescription("Degenerate filters found in pipelines' filterbanks."),
		metric.WithUnit("{filter}"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// recordCompute is called once per Compute, successful or not.
func (m *metrics) recordCompute(ctx context.Context, source string, frames int, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
	)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	if err == nil {
		m.frames.Add(ctx, int64(frames), metric.WithAttributes(attribute.String("source", source)))
	}
}

func (m *metrics) recordDegenerate(ctx context.Context, count, sampleRate int) {
	if count == 0 {
		return
	}
	m.degenerate.Add(ctx, int64(count), metric.WithAttributes(attribute.Int("sample_rate", sampleRate)))
}
