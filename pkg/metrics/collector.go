package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dbehnke/convfec/pkg/harness"
)

// Collector collects decoder trial metrics on a private registry
type Collector struct {
	registry *prometheus.Registry

	frames           *prometheus.CounterVec   // by decoder, outcome
	bitErrors        *prometheus.CounterVec   // by decoder
	decodeSeconds    *prometheus.HistogramVec // by method
	fanoCyclesPerBit prometheus.Histogram
	fanoTimeouts     prometheus.Counter
	viterbiFallbacks prometheus.Counter
	renormalizations prometheus.Counter
	runsActive       prometheus.Gauge

	mu sync.RWMutex

	// Running totals for callers without a scraper
	totalFrames     uint64
	goodFrames      uint64
	totalBitErrors  uint64
	totalTimeouts   uint64
	totalFallbacks  uint64
	totalFanoCycles uint64
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		frames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fec_frames_total",
			Help: "Decoded frames by decoder and outcome",
		}, []string{"decoder", "outcome"}),
		bitErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fec_bit_errors_total",
			Help: "Bit errors left after decoding",
		}, []string{"decoder"}),
		decodeSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fec_decode_seconds",
			Help:    "Time spent decoding one frame",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
		}, []string{"method"}),
		fanoCyclesPerBit: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fec_fano_cycles_per_bit",
			Help:    "Fano decoder moves per decoded bit",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		fanoTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "fec_fano_timeouts_total",
			Help: "Fano decodes that exhausted their move budget",
		}),
		viterbiFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "fec_viterbi_fallbacks_total",
			Help: "Frames re-decoded with Viterbi after a Fano timeout",
		}),
		renormalizations: f.NewCounter(prometheus.CounterOpts{
			Name: "fec_viterbi_renormalizations_total",
			Help: "Viterbi path metric renormalizations",
		}),
		runsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "fec_runs_active",
			Help: "Trial batches currently running",
		}),
	}
}

// Registry returns the registry backing this collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordFrame records one finished trial frame
func (c *Collector) RecordFrame(f harness.Frame) {
	decoder := string(f.Decoder)
	c.frames.WithLabelValues(decoder, f.Outcome()).Inc()
	c.bitErrors.WithLabelValues(decoder).Add(float64(f.BitErrors))
	c.decodeSeconds.WithLabelValues(f.Method).Observe(f.Elapsed.Seconds())
	if f.Decoder != harness.DecoderViterbi && f.Bits > 0 {
		c.fanoCyclesPerBit.Observe(float64(f.Cycles) / float64(f.Bits))
	}
	timeout := (f.Decoder == harness.DecoderFano && !f.Decoded) || f.Fallback
	if timeout {
		c.fanoTimeouts.Inc()
	}
	if f.Fallback {
		c.viterbiFallbacks.Inc()
	}
	c.renormalizations.Add(float64(f.Renormalizations))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalFrames++
	if f.Correct {
		c.goodFrames++
	}
	c.totalBitErrors += uint64(f.BitErrors)
	if timeout {
		c.totalTimeouts++
	}
	if f.Fallback {
		c.totalFallbacks++
	}
	if f.Cycles > 0 {
		c.totalFanoCycles += uint64(f.Cycles)
	}
}

// RunStarted marks a trial batch as running
func (c *Collector) RunStarted() {
	c.runsActive.Inc()
}

// RunFinished marks a trial batch as done
func (c *Collector) RunFinished() {
	c.runsActive.Dec()
}

// GetTotalFrames returns the number of frames recorded
func (c *Collector) GetTotalFrames() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalFrames
}

// GetGoodFrames returns the number of correctly decoded frames
func (c *Collector) GetGoodFrames() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.goodFrames
}

// GetBitErrors returns the total residual bit errors
func (c *Collector) GetBitErrors() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalBitErrors
}

// GetFanoTimeouts returns the number of Fano timeouts
func (c *Collector) GetFanoTimeouts() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalTimeouts
}

// GetViterbiFallbacks returns the number of Viterbi fallbacks
func (c *Collector) GetViterbiFallbacks() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalFallbacks
}

// GetFanoCycles returns the total Fano moves
func (c *Collector) GetFanoCycles() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalFanoCycles
}
