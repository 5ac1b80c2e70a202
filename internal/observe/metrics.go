// Package observe holds the OpenTelemetry instruments for the voice
// pipeline. Metrics are scraped through a Prometheus exporter set up by
// [InitProvider]; tests should build [Metrics] from their own
// [metric.MeterProvider].
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/petems/voiceclip"

// Metrics holds the pipeline's instruments. Safe for concurrent use.
type Metrics struct {
	// Utterances counts finalized recognizer results per channel.
	Utterances metric.Int64Counter

	// Triggers counts utterances that fired the clip action.
	Triggers metric.Int64Counter

	// ResultErrors counts malformed recognizer output.
	ResultErrors metric.Int64Counter

	// FramesDropped counts frames discarded because the channel worker was
	// behind.
	FramesDropped metric.Int64Counter

	// DeviceErrors counts failures opening or reloading a device.
	DeviceErrors metric.Int64Counter

	// Listening is 1 while voice commands are enabled.
	Listening metric.Int64UpDownCounter

	meter metric.Meter
	level metric.Float64ObservableGauge
	reg   metric.Registration
}

// LevelFunc reports the current peak level for each channel.
type LevelFunc func() map[string]float32

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.Utterances, err = m.Int64Counter("voiceclip.utterances",
		metric.WithDescription("Finalized recognizer results by channel."),
	); err != nil {
		return nil, err
	}
	if met.Triggers, err = m.Int64Counter("voiceclip.triggers",
		metric.WithDescription("Utterances that triggered a clip, by channel."),
	); err != nil {
		return nil, err
	}
	if met.ResultErrors, err = m.Int64Counter("voiceclip.result.errors",
		metric.WithDescription("Malformed recognizer results by channel."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voiceclip.frames.dropped",
		metric.WithDescription("Audio frames dropped because recognition fell behind."),
	); err != nil {
		return nil, err
	}
	if met.DeviceErrors, err = m.Int64Counter("voiceclip.device.errors",
		metric.WithDescription("Failures opening or reloading an audio device."),
	); err != nil {
		return nil, err
	}
	if met.Listening, err = m.Int64UpDownCounter("voiceclip.listening",
		metric.WithDescription("1 while voice commands are enabled."),
	); err != nil {
		return nil, err
	}
	if met.level, err = m.Float64ObservableGauge("voiceclip.level",
		metric.WithDescription("Most recent peak level per channel, 0 to 1."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Nop returns instruments that record nothing.
func Nop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

// ObserveLevels registers fn as the source of the level gauge. A later call
// replaces the previous source.
func (m *Metrics) ObserveLevels(fn LevelFunc) error {
	if m.reg != nil {
		if err := m.reg.Unregister(); err != nil {
			return err
		}
		m.reg = nil
	}
	reg, err := m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for ch, v := range fn() {
			o.ObserveFloat64(m.level, float64(v), metric.WithAttributes(Channel(ch)))
		}
		return nil
	}, m.level)
	if err != nil {
		return err
	}
	m.reg = reg
	return nil
}

// Resume and Pause track the listening state in [Metrics.Listening]. They
// are called once per transition, so the counter stays at 0 or 1.
func (m *Metrics) Resume() error {
	m.Listening.Add(context.Background(), 1)
	return nil
}

func (m *Metrics) Pause() error {
	m.Listening.Add(context.Background(), -1)
	return nil
}

// Channel is the attribute every pipeline metric is keyed by.
func Channel(name string) attribute.KeyValue {
	return attribute.String("channel", name)
}

// Inc adds one to c for channel ch.
func Inc(ctx context.Context, c metric.Int64Counter, ch string) {
	c.Add(ctx, 1, metric.WithAttributes(Channel(ch)))
}
