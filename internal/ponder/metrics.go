package ponder

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics is the measurement collaborator the session drives: a
// time-to-first-byte timer spanning submit to first audio chunk, and a
// usage counter fed per submitted text unit.
type Metrics interface {
	StartTTFB(ctx context.Context)
	// StopTTFB records the latency once per started timer; extra calls
	// are no-ops so the receive loop can invoke it on every chunk.
	StopTTFB(ctx context.Context)
	AddUsage(ctx context.Context, text string)
	// StopAll abandons any running timer without recording.
	StopAll(ctx context.Context)
}

// OTelMetrics reports through the global OpenTelemetry meter.
type OTelMetrics struct {
	mu        sync.Mutex
	ttfbStart time.Time

	ttfb  metric.Float64Histogram
	chars metric.Int64Counter
	clock func() time.Time
}

func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("ponder-stream/tts")
	ttfb, err := meter.Float64Histogram("tts.ttfb",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency from text submission to first audio byte"))
	if err != nil {
		return nil, err
	}
	chars, err := meter.Int64Counter("tts.characters",
		metric.WithDescription("Characters submitted for synthesis"))
	if err != nil {
		return nil, err
	}
	return &OTelMetrics{ttfb: ttfb, chars: chars, clock: time.Now}, nil
}

func (m *OTelMetrics) StartTTFB(ctx context.Context) {
	m.mu.Lock()
	m.ttfbStart = m.clock()
	m.mu.Unlock()
}

func (m *OTelMetrics) StopTTFB(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ttfbStart.IsZero() {
		return
	}
	elapsed := m.clock().Sub(m.ttfbStart)
	m.ttfbStart = time.Time{}
	m.ttfb.Record(ctx, float64(elapsed)/float64(time.Millisecond))
}

func (m *OTelMetrics) AddUsage(ctx context.Context, text string) {
	m.chars.Add(ctx, int64(len(text)))
}

func (m *OTelMetrics) StopAll(ctx context.Context) {
	m.mu.Lock()
	m.ttfbStart = time.Time{}
	m.mu.Unlock()
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) StartTTFB(context.Context)        {}
func (NopMetrics) StopTTFB(context.Context)         {}
func (NopMetrics) AddUsage(context.Context, string) {}
func (NopMetrics) StopAll(context.Context)          {}
