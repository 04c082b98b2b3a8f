package gometrics

import (
	"sync"
	"testing"

	metrics "github.com/rcrowley/go-metrics"
)

func TestCollector_IncCounter(t *testing.T) {
	reg := metrics.NewRegistry()
	c := New(reg)

	c.IncCounter("test_counter", 5)
	c.IncCounter("test_counter", 3)

	counter, ok := reg.Get("test_counter").(metrics.Counter)
	if !ok {
		t.Fatal("test_counter not registered as a counter")
	}
	if got := counter.Count(); got != 8 {
		t.Errorf("counter value = %d, want 8", got)
	}
}

func TestCollector_SetGauge(t *testing.T) {
	reg := metrics.NewRegistry()
	c := New(reg)

	c.SetGauge("test_gauge", 7)
	c.SetGauge("test_gauge", 42)

	gauge, ok := reg.Get("test_gauge").(metrics.Gauge)
	if !ok {
		t.Fatal("test_gauge not registered as a gauge")
	}
	if got := gauge.Value(); got != 42 {
		t.Errorf("gauge value = %d, want 42", got)
	}
}

func TestCollector_ObserveHistogram(t *testing.T) {
	reg := metrics.NewRegistry()
	c := New(reg)

	c.ObserveHistogram("test_histogram", 0.5)
	c.ObserveHistogram("test_histogram", 1.5)

	h, ok := reg.Get("test_histogram").(metrics.Histogram)
	if !ok {
		t.Fatal("test_histogram not registered as a histogram")
	}
	if got := h.Count(); got != 2 {
		t.Errorf("histogram count = %d, want 2", got)
	}
	if got := h.Max(); got != 1_500_000 {
		t.Errorf("histogram max = %d, want 1500000", got)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	reg := metrics.NewRegistry()
	c := New(reg)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.IncCounter("concurrent_counter", 1)
				c.ObserveHistogram("concurrent_histogram", float64(j))
			}
		}()
	}
	wg.Wait()

	if got := reg.Get("concurrent_counter").(metrics.Counter).Count(); got != 1000 {
		t.Errorf("counter value = %d, want 1000", got)
	}
	if got := reg.Get("concurrent_histogram").(metrics.Histogram).Count(); got != 1000 {
		t.Errorf("histogram count = %d, want 1000", got)
	}
}

func TestNew_DefaultRegistry(t *testing.T) {
	c := New(nil)
	if c.Registry() != metrics.DefaultRegistry {
		t.Error("New(nil) should use metrics.DefaultRegistry")
	}
}
