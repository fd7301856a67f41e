package harness

import (
	"errors"
	"fmt"

	"github.com/dbehnke/convfec/pkg/code"
)

// DecoderKind selects the decoder under test
type DecoderKind string

const (
	DecoderViterbi DecoderKind = "viterbi"
	DecoderFano    DecoderKind = "fano"
	DecoderHybrid  DecoderKind = "hybrid"
)

var ErrConfig = errors.New("harness: invalid configuration")

// Config describes one batch of trials
type Config struct {
	Code            string      // registry name, see code.Names
	FrameBits       int         // bits per frame, tail included; multiple of 8
	Trials          int         // frames to run
	EbN0            float64     // channel Eb/N0 in dB
	Signal          float64     // signal amplitude in sample units
	Scale           float64     // metric table scale
	Delta           int64       // Fano threshold step before scaling
	MaxCycles       int         // Fano moves per bit
	Decoder         DecoderKind // viterbi, fano or hybrid
	Workers         int         // 0 uses every CPU
	Seed            int64       // 0 picks a time based seed
	ZeroData        bool        // send all-zero frames
	SoftViterbi     bool        // drive Viterbi with a metric table instead of sample distance
	Renormalization uint32      // Viterbi renormalization threshold, 0 keeps the decoder default
	ProgressEvery   int         // log progress every N frames, 0 disables
}

// DefaultConfig mirrors the classic sequential decoding test setup
func DefaultConfig() Config {
	return Config{
		Code:      "k7",
		FrameBits: 1024,
		Trials:    1000,
		EbN0:      2.0,
		Signal:    30,
		Scale:     8,
		Delta:     4,
		MaxCycles: 10000,
		Decoder:   DecoderViterbi,
	}
}

// Validate checks the configuration and resolves the code
func (c *Config) Validate() (*code.Spec, error) {
	spec, err := code.Lookup(c.Code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if c.FrameBits <= 0 || c.FrameBits%8 != 0 {
		return nil, fmt.Errorf("%w: frame_bits %d must be a positive multiple of 8", ErrConfig, c.FrameBits)
	}
	if c.FrameBits/8 <= tailBytes(spec) {
		return nil, fmt.Errorf("%w: frame_bits %d leaves no room for data with a %d bit tail", ErrConfig, c.FrameBits, spec.TailBits())
	}
	if c.Trials <= 0 {
		return nil, fmt.Errorf("%w: trials must be positive", ErrConfig)
	}
	if !(c.Signal > 0) || c.Signal > 127 {
		return nil, fmt.Errorf("%w: signal %v out of range (0,127]", ErrConfig, c.Signal)
	}
	if !(c.Scale > 0) {
		return nil, fmt.Errorf("%w: scale must be positive", ErrConfig)
	}
	if c.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must not be negative", ErrConfig)
	}
	switch c.Decoder {
	case DecoderViterbi:
	case DecoderFano, DecoderHybrid:
		if c.Delta <= 0 {
			return nil, fmt.Errorf("%w: delta must be positive", ErrConfig)
		}
		if c.MaxCycles < 0 {
			return nil, fmt.Errorf("%w: max_cycles must not be negative", ErrConfig)
		}
	default:
		return nil, fmt.Errorf("%w: unknown decoder %q", ErrConfig, c.Decoder)
	}
	return spec, nil
}

// tailBytes is the number of trailing zero bytes that hold the tail
func tailBytes(spec *code.Spec) int {
	return (spec.TailBits() + 7) / 8
}
