package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
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

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.STTDuration.Record(ctx, 0.12)
	m.TurnDuration.Record(ctx, 0.8)

	rm := collect(t, reader)
	stt := findMetric(rm, "scheduler.stt.duration")
	if stt == nil {
		t.Fatal("scheduler.stt.duration not found")
	}
	hist, ok := stt.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("stt data type = %T", stt.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Errorf("stt data points = %+v", hist.DataPoints)
	}
	if findMetric(rm, "scheduler.turn.duration") == nil {
		t.Error("scheduler.turn.duration not found")
	}
}

func TestProviderCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "openai", "llm", "ok")
	m.RecordProviderRequest(ctx, "openai", "llm", "ok")
	m.RecordProviderError(ctx, "coqui", "tts")

	rm := collect(t, reader)
	reqs := findMetric(rm, "scheduler.provider.requests")
	if reqs == nil {
		t.Fatal("scheduler.provider.requests not found")
	}
	sum, ok := reqs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("requests data type = %T", reqs.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
		t.Errorf("request data points = %+v", sum.DataPoints)
	}
	if v, ok := sum.DataPoints[0].Attributes.Value(attribute.Key("provider")); !ok || v.AsString() != "openai" {
		t.Errorf("provider attribute = %v", v)
	}

	errs := findMetric(rm, "scheduler.provider.errors")
	if errs == nil {
		t.Fatal("scheduler.provider.errors not found")
	}
}

func TestActiveSessionsUpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	active := findMetric(rm, "scheduler.active_sessions")
	if active == nil {
		t.Fatal("scheduler.active_sessions not found")
	}
	sum, ok := active.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("active data type = %T", active.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("active data points = %+v", sum.DataPoints)
	}
}

func TestToolCallAttributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "apartment_search", "ok")
	m.RecordToolCall(ctx, "apartment_search", "error")

	rm := collect(t, reader)
	calls := findMetric(rm, "scheduler.tool.calls")
	if calls == nil {
		t.Fatal("scheduler.tool.calls not found")
	}
	sum, ok := calls.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("calls data type = %T", calls.Data)
	}
	// One data point per distinct status.
	if len(sum.DataPoints) != 2 {
		t.Errorf("call data points = %+v", sum.DataPoints)
	}
}

func TestAttrHelper(t *testing.T) {
	kv := Attr("transport", "twilio")
	if kv.Key != "transport" || kv.Value.AsString() != "twilio" {
		t.Errorf("Attr = %+v", kv)
	}
	_ = metric.WithAttributes(kv)
}
