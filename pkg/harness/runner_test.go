package harness

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbehnke/convfec/pkg/logger"
)

type frameLog struct {
	mu     sync.Mutex
	frames []Frame
}

func (l *frameLog) RecordFrame(f Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, f)
}

func testConfig(decoder DecoderKind) Config {
	cfg := DefaultConfig()
	cfg.Decoder = decoder
	cfg.FrameBits = 256
	cfg.Trials = 12
	cfg.EbN0 = 7
	cfg.Workers = 3
	cfg.Seed = 1234
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown code", func(c *Config) { c.Code = "nope" }},
		{"frame not byte aligned", func(c *Config) { c.FrameBits = 100 }},
		{"frame all tail", func(c *Config) { c.Code = "j60"; c.FrameBits = 64 }},
		{"no trials", func(c *Config) { c.Trials = 0 }},
		{"signal too large", func(c *Config) { c.Signal = 200 }},
		{"zero scale", func(c *Config) { c.Scale = 0 }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"unknown decoder", func(c *Config) { c.Decoder = "bcjr" }},
		{"fano without delta", func(c *Config) { c.Decoder = DecoderFano; c.Delta = 0 }},
		{"negative cycles", func(c *Config) { c.Decoder = DecoderHybrid; c.MaxCycles = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			_, err := cfg.Validate()
			assert.True(t, errors.Is(err, ErrConfig), "got %v", err)
		})
	}

	cfg := DefaultConfig()
	spec, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, "k7", spec.Name)
}

func TestRunner_Viterbi(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "info", Output: &buf})
	rec := &frameLog{}

	r, err := NewRunner(testConfig(DecoderViterbi), log, rec)
	require.NoError(t, err)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12, sum.Frames)
	assert.Equal(t, 12, sum.Good)
	assert.Zero(t, sum.FER)
	assert.Zero(t, sum.BER)
	assert.Zero(t, sum.FanoAttempts)
	assert.Equal(t, int64(1234), sum.Seed)
	assert.Len(t, rec.frames, 12)

	trials := map[int]bool{}
	for _, f := range rec.frames {
		trials[f.Trial] = true
		assert.Equal(t, "viterbi", f.Method)
		assert.Equal(t, "good", f.Outcome())
	}
	assert.Len(t, trials, 12, "every trial runs exactly once")
	assert.Contains(t, buf.String(), "Trials complete")
}

func TestRunner_Fano(t *testing.T) {
	cfg := testConfig(DecoderFano)
	cfg.Code = "mcqli24"
	cfg.EbN0 = 5

	r, err := NewRunner(cfg, logger.New(logger.Config{Level: "error"}), nil)
	require.NoError(t, err)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12, sum.Good)
	assert.Equal(t, 12, sum.FanoAttempts)
	assert.Zero(t, sum.FanoTimeouts)
	assert.GreaterOrEqual(t, sum.CyclesPerBit, 1.0)
}

func TestRunner_HybridFallsBack(t *testing.T) {
	cfg := testConfig(DecoderHybrid)
	cfg.Code = "k9"
	cfg.MaxCycles = 0
	cfg.Renormalization = 1 << 12
	rec := &frameLog{}

	r, err := NewRunner(cfg, logger.New(logger.Config{Level: "error"}), rec)
	require.NoError(t, err)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12, sum.ViterbiFallbacks)
	assert.Equal(t, 12, sum.FanoTimeouts)
	assert.Equal(t, 12, sum.Good)
	assert.Greater(t, sum.Renormalizations, int64(0))
	for _, f := range rec.frames {
		assert.True(t, f.Fallback)
		assert.Equal(t, "viterbi", f.Method)
	}
}

func TestRunner_SoftViterbiZeroData(t *testing.T) {
	cfg := testConfig(DecoderViterbi)
	cfg.SoftViterbi = true
	cfg.ZeroData = true
	cfg.Workers = 1

	r, err := NewRunner(cfg, logger.New(logger.Config{Level: "error"}), nil)
	require.NoError(t, err)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, sum.Good)
}

func TestRunner_Cancelled(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewRunner(testConfig(DecoderViterbi), logger.New(logger.Config{Level: "info", Output: &buf}), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := r.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, sum)
	assert.Zero(t, sum.Frames)
	assert.True(t, strings.Contains(buf.String(), "Trials cancelled"))
}

func TestNewRunner_DefaultsWorkersAndSeed(t *testing.T) {
	cfg := testConfig(DecoderViterbi)
	cfg.Workers = 0
	cfg.Seed = 0

	r, err := NewRunner(cfg, nil, nil)
	require.NoError(t, err)
	assert.Greater(t, r.Config().Workers, 0)
	assert.NotZero(t, r.Config().Seed)
	assert.Equal(t, "k7", r.Spec().Name)
}

func TestFrame_Score(t *testing.T) {
	sent := []byte{0xa5, 0x5a, 0x00}

	f := Frame{Bits: 24, Decoded: true}
	f.score(sent, []byte{0xa5, 0x5a, 0x00})
	assert.True(t, f.Correct)
	assert.Zero(t, f.BitErrors)

	f = Frame{Bits: 24, Decoded: true}
	f.score(sent, []byte{0xa5, 0x5b, 0x00})
	assert.False(t, f.Correct)
	assert.Equal(t, 1, f.BitErrors)
	assert.Equal(t, "undetected", f.Outcome())

	// Truncated output counts no bit errors but is still wrong
	f = Frame{Bits: 24, Decoded: true}
	f.score(sent, []byte{0xa5, 0x5a})
	assert.Zero(t, f.BitErrors)
	assert.False(t, f.Correct)

	f = Frame{Bits: 24}
	f.score(sent, nil)
	assert.False(t, f.Correct)
	assert.Equal(t, "failed", f.Outcome())
}

func TestFrame_Outcome(t *testing.T) {
	assert.Equal(t, "good", Frame{Correct: true, Decoded: true}.Outcome())
	assert.Equal(t, "failed", Frame{}.Outcome())
	assert.Equal(t, "undetected", Frame{Decoded: true}.Outcome())
}
