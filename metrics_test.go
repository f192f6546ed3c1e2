package muesli

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type meteredRecord struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("NewMetrics() error: %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Fatal("registering the collectors twice should fail")
	}
}

func TestMetrics_NilIsNoop(_ *testing.T) {
	var m *Metrics
	m.pass("serialize", time.Millisecond, nil)
	m.skip()
	m.built()
}

func TestMetrics_Pass(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetrics() error: %v", err)
	}

	m.pass("serialize", time.Millisecond, nil)
	m.pass("serialize", time.Millisecond, nil)
	m.pass("deserialize", time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(m.passes.WithLabelValues("serialize", "ok")); got != 2 {
		t.Errorf("serialize ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.passes.WithLabelValues("deserialize", "error")); got != 1 {
		t.Errorf("deserialize error = %v, want 1", got)
	}
}

func TestMetrics_Serializer(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetrics() error: %v", err)
	}
	// A private attribute registry gives the serializer its own factory, so
	// the descriptor below is built by this test.
	s := New(WithMetrics(m), WithAttributes(NewAttributeRegistry()), WithAllowErrors(true))
	ctx := context.Background()

	data, err := s.Serialize(ctx, meteredRecord{Name: "a", Count: 1})
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	if _, _, err := s.Deserialize(ctx, data, reflect.TypeFor[meteredRecord]()); err != nil {
		t.Fatalf("Deserialize() error: %v", err)
	}
	if _, _, err := s.Deserialize(ctx, []byte("name: b\ncount: many\n"), reflect.TypeFor[meteredRecord]()); err != nil {
		t.Fatalf("Deserialize() with errors allowed: %v", err)
	}

	if got := testutil.ToFloat64(m.passes.WithLabelValues("serialize", "ok")); got != 1 {
		t.Errorf("serialize passes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.passes.WithLabelValues("deserialize", "ok")); got != 2 {
		t.Errorf("deserialize passes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.skipped); got != 1 {
		t.Errorf("skipped nodes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.descriptors); got < 1 {
		t.Errorf("descriptors built = %v, want at least 1", got)
	}
}
