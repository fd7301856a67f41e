package harness

import (
	"time"

	"github.com/dbehnke/convfec/pkg/code"
)

// Summary aggregates a batch of trials
type Summary struct {
	Code      string
	Decoder   DecoderKind
	FrameBits int
	EbN0      float64
	Noise     float64
	Seed      int64

	Frames           int
	Good             int
	Failed           int // decoder reported failure (Fano timeout)
	Undetected       int // decoder reported success with wrong bits
	FanoTimeouts     int
	ViterbiFallbacks int
	BitErrors        int64
	Cycles           int64 // Fano moves over all attempts
	FanoAttempts     int
	Renormalizations int64

	BER          float64
	FER          float64
	CyclesPerBit float64
	Elapsed      time.Duration
}

func newSummary(cfg Config, spec *code.Spec, noise float64) *Summary {
	return &Summary{
		Code:      spec.Name,
		Decoder:   cfg.Decoder,
		FrameBits: cfg.FrameBits,
		EbN0:      cfg.EbN0,
		Noise:     noise,
		Seed:      cfg.Seed,
	}
}

func (s *Summary) add(f Frame) {
	s.Frames++
	switch f.Outcome() {
	case "good":
		s.Good++
	case "failed":
		s.Failed++
	default:
		s.Undetected++
	}
	s.BitErrors += int64(f.BitErrors)
	s.Renormalizations += int64(f.Renormalizations)

	if f.Decoder != DecoderViterbi {
		s.FanoAttempts++
		s.Cycles += f.Cycles
		if (f.Decoder == DecoderFano && !f.Decoded) || f.Fallback {
			s.FanoTimeouts++
		}
	}
	if f.Fallback {
		s.ViterbiFallbacks++
	}
}

func (s *Summary) finish(elapsed time.Duration) {
	s.Elapsed = elapsed
	if s.Frames == 0 {
		return
	}
	s.BER = float64(s.BitErrors) / float64(int64(s.Frames)*int64(s.FrameBits))
	s.FER = float64(s.Frames-s.Good) / float64(s.Frames)
	if s.FanoAttempts > 0 {
		s.CyclesPerBit = float64(s.Cycles) / float64(int64(s.FanoAttempts)*int64(s.FrameBits))
	}
}
