package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dbehnke/convfec/pkg/harness"
)

// TestNewCollector tests creating a new metrics collector
func TestNewCollector(t *testing.T) {
	collector := NewCollector()
	if collector == nil {
		t.Fatal("Expected non-nil collector")
	}
	if collector.Registry() == nil {
		t.Fatal("Expected a registry")
	}
}

// TestCollector_RecordFrame tests frame outcome accounting
func TestCollector_RecordFrame(t *testing.T) {
	collector := NewCollector()

	collector.RecordFrame(harness.Frame{Decoder: harness.DecoderViterbi, Method: "viterbi", Decoded: true, Correct: true, Bits: 1024, Elapsed: time.Millisecond})
	collector.RecordFrame(harness.Frame{Decoder: harness.DecoderViterbi, Method: "viterbi", Decoded: true, BitErrors: 3, Bits: 1024, Renormalizations: 2})
	collector.RecordFrame(harness.Frame{Decoder: harness.DecoderFano, Method: "fano", Decoded: false, Cycles: 4096, Bits: 1024})

	if got := collector.GetTotalFrames(); got != 3 {
		t.Errorf("Expected 3 frames, got %d", got)
	}
	if got := collector.GetGoodFrames(); got != 1 {
		t.Errorf("Expected 1 good frame, got %d", got)
	}
	if got := collector.GetBitErrors(); got != 3 {
		t.Errorf("Expected 3 bit errors, got %d", got)
	}
	if got := collector.GetFanoTimeouts(); got != 1 {
		t.Errorf("Expected 1 timeout, got %d", got)
	}
	if got := collector.GetFanoCycles(); got != 4096 {
		t.Errorf("Expected 4096 cycles, got %d", got)
	}

	if got := testutil.ToFloat64(collector.frames.WithLabelValues("viterbi", "undetected")); got != 1 {
		t.Errorf("Expected 1 undetected viterbi frame, got %v", got)
	}
	if got := testutil.ToFloat64(collector.frames.WithLabelValues("fano", "failed")); got != 1 {
		t.Errorf("Expected 1 failed fano frame, got %v", got)
	}
	if got := testutil.ToFloat64(collector.renormalizations); got != 2 {
		t.Errorf("Expected 2 renormalizations, got %v", got)
	}
	if got := testutil.CollectAndCount(collector.fanoCyclesPerBit); got != 1 {
		t.Errorf("Expected one cycles histogram, got %d", got)
	}
}

// TestCollector_Fallback tests hybrid fallback accounting
func TestCollector_Fallback(t *testing.T) {
	collector := NewCollector()

	collector.RecordFrame(harness.Frame{Decoder: harness.DecoderHybrid, Method: "viterbi", Decoded: true, Correct: true, Fallback: true, Bits: 256})

	if got := collector.GetViterbiFallbacks(); got != 1 {
		t.Errorf("Expected 1 fallback, got %d", got)
	}
	if got := collector.GetFanoTimeouts(); got != 1 {
		t.Errorf("Expected the fallback to count as a timeout, got %d", got)
	}
	if got := testutil.ToFloat64(collector.viterbiFallbacks); got != 1 {
		t.Errorf("Expected fallback counter 1, got %v", got)
	}
}

// TestCollector_RunGauge tests the active run gauge
func TestCollector_RunGauge(t *testing.T) {
	collector := NewCollector()

	collector.RunStarted()
	collector.RunStarted()
	collector.RunFinished()

	if got := testutil.ToFloat64(collector.runsActive); got != 1 {
		t.Errorf("Expected 1 active run, got %v", got)
	}
}

// TestCollector_Concurrent tests concurrent recording
func TestCollector_Concurrent(t *testing.T) {
	collector := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				collector.RecordFrame(harness.Frame{Decoder: harness.DecoderViterbi, Method: "viterbi", Decoded: true, Correct: true, Bits: 64})
			}
		}()
	}
	wg.Wait()

	if got := collector.GetTotalFrames(); got != 800 {
		t.Errorf("Expected 800 frames, got %d", got)
	}
}
