package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func channelOf(attrs attribute.Set) string {
	v, _ := attrs.Value("channel")
	return v.AsString()
}

func TestCountersByChannel(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	Inc(ctx, m.Utterances, "microphone")
	Inc(ctx, m.Utterances, "microphone")
	Inc(ctx, m.Utterances, "speaker")
	Inc(ctx, m.Triggers, "speaker")

	rm := collect(t, reader)

	got := findMetric(rm, "voiceclip.utterances")
	if got == nil {
		t.Fatal("utterances metric not found")
	}
	sum, ok := got.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64], got %T", got.Data)
	}
	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		counts[channelOf(dp.Attributes)] = dp.Value
	}
	if counts["microphone"] != 2 || counts["speaker"] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}

	if findMetric(rm, "voiceclip.triggers") == nil {
		t.Error("triggers metric not found")
	}
}

func TestObserveLevels(t *testing.T) {
	m, reader := newTestMetrics(t)

	err := m.ObserveLevels(func() map[string]float32 {
		return map[string]float32{"microphone": 0.5, "speaker": 0}
	})
	if err != nil {
		t.Fatalf("ObserveLevels: %v", err)
	}

	rm := collect(t, reader)
	got := findMetric(rm, "voiceclip.level")
	if got == nil {
		t.Fatal("level metric not found")
	}
	gauge, ok := got.Data.(metricdata.Gauge[float64])
	if !ok {
		t.Fatalf("expected Gauge[float64], got %T", got.Data)
	}
	levels := map[string]float64{}
	for _, dp := range gauge.DataPoints {
		levels[channelOf(dp.Attributes)] = dp.Value
	}
	if levels["microphone"] != 0.5 {
		t.Errorf("microphone level = %v, want 0.5", levels["microphone"])
	}
	if _, ok := levels["speaker"]; !ok {
		t.Error("speaker level missing")
	}

	// Replacing the source drops the old one.
	if err := m.ObserveLevels(func() map[string]float32 { return nil }); err != nil {
		t.Fatalf("ObserveLevels replace: %v", err)
	}
	rm = collect(t, reader)
	if got := findMetric(rm, "voiceclip.level"); got != nil {
		if g, ok := got.Data.(metricdata.Gauge[float64]); ok && len(g.DataPoints) > 0 {
			t.Errorf("expected no level points after replacement, got %d", len(g.DataPoints))
		}
	}
}

func TestListeningFollowsSessionTransitions(t *testing.T) {
	m, reader := newTestMetrics(t)

	listening := func() int64 {
		t.Helper()
		got := findMetric(collect(t, reader), "voiceclip.listening")
		if got == nil {
			t.Fatal("listening metric not found")
		}
		sum, ok := got.Data.(metricdata.Sum[int64])
		if !ok || len(sum.DataPoints) != 1 {
			t.Fatalf("unexpected listening data %#v", got.Data)
		}
		return sum.DataPoints[0].Value
	}

	if err := m.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if v := listening(); v != 1 {
		t.Errorf("listening after Resume = %d, want 1", v)
	}
	if err := m.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if v := listening(); v != 0 {
		t.Errorf("listening after Pause = %d, want 0", v)
	}
}

func TestNopRecordsNothing(t *testing.T) {
	m := Nop()
	if m == nil {
		t.Fatal("Nop returned nil")
	}
	Inc(context.Background(), m.FramesDropped, "microphone")
	if err := m.ObserveLevels(func() map[string]float32 { return nil }); err != nil {
		t.Fatalf("ObserveLevels on nop: %v", err)
	}
}

func TestInitProviderMergesWithDefaultResource(t *testing.T) {
	p, err := InitProvider("dev")
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer p.Shutdown(context.Background())

	if p.Handler() == nil {
		t.Fatal("expected a metrics handler")
	}
}

func TestProviderHandler(t *testing.T) {
	p, err := InitProvider("test")
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer p.Shutdown(context.Background())

	m, err := NewMetrics(p)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	Inc(context.Background(), m.DeviceErrors, "speaker")

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), "voiceclip_device_errors") {
		t.Errorf("expected device error counter in output, got:\n%s", body)
	}
}
