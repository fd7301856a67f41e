// Package channel simulates a memoryless AWGN channel carrying BPSK
// symbols and quantizes what it receives into 8-bit offset-binary samples,
// the input format of the decoders.
package channel

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

var ErrParameter = errors.New("channel: invalid parameter")

// AWGN draws noisy samples for transmitted 0/1 symbols. Not safe for
// concurrent use; give each goroutine its own channel.
type AWGN struct {
	cdf    [2][256]float64 // cumulative probability at the right edge of each bin
	starts [2]int          // most likely sample per bit
	rng    *rand.Rand
}

// NewAWGN builds the per-bit sample distributions for the given signal and
// noise amplitudes, in sample units
func NewAWGN(signal, noise float64, seed int64) (*AWGN, error) {
	if !(noise > 0) || math.IsInf(noise, 0) {
		return nil, fmt.Errorf("%w: noise amplitude %v", ErrParameter, noise)
	}
	if !(signal >= 0) || signal > 127 {
		return nil, fmt.Errorf("%w: signal amplitude %v", ErrParameter, signal)
	}

	c := &AWGN{rng: rand.New(rand.NewSource(seed))}
	inv := 1 / noise
	for s := 0; s < 256; s++ {
		edge := float64(s-128) + 0.5
		c.cdf[0][s] = distuv.UnitNormal.CDF((edge + signal) * inv)
		c.cdf[1][s] = distuv.UnitNormal.CDF((edge - signal) * inv)
	}
	c.cdf[0][255], c.cdf[1][255] = 1, 1
	c.starts[0] = 128 - int(signal)
	c.starts[1] = 128 + int(signal)
	return c, nil
}

// Simulate returns a received sample for one transmitted bit
func (c *AWGN) Simulate(bit uint8) byte {
	cdf := &c.cdf[bit&1]
	u := c.rng.Float64()

	// Binary search starting from the most likely bin
	low, high := 0, 255
	s := c.starts[bit&1]
	for high != low {
		if u > cdf[s] {
			low = s + 1
		} else {
			high = s
		}
		s = (low + high) / 2
	}
	return byte(s)
}

// Transmit passes a whole symbol stream through the channel
func (c *AWGN) Transmit(symbols []byte) []byte {
	out := make([]byte, len(symbols))
	for i, sym := range symbols {
		out[i] = c.Simulate(sym)
	}
	return out
}

// NoiseAmplitude converts Eb/N0 in dB into a noise amplitude for a code of
// the given rate. BPSK sees half the noise power.
func NoiseAmplitude(signal, ebn0dB, rate float64) float64 {
	return signal / math.Sqrt(2*rate*math.Pow(10, ebn0dB/10))
}

// Modulate maps 0/1 symbols to noiseless samples 128-amplitude and
// 128+amplitude, clamped to [0,255]
func Modulate(symbols []byte, amplitude int) []byte {
	lo, hi := 128-amplitude, 128+amplitude
	if lo < 0 {
		lo = 0
	}
	if hi > 255 {
		hi = 255
	}
	out := make([]byte, len(symbols))
	for i, s := range symbols {
		if s&1 != 0 {
			out[i] = byte(hi)
		} else {
			out[i] = byte(lo)
		}
	}
	return out
}

// BitErrors counts differing bits over the shorter of a and b
func BitErrors(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	errs := 0
	for i := 0; i < n; i++ {
		errs += bits.OnesCount8(a[i] ^ b[i])
	}
	return errs
}

// FrameEqual reports whether the first nbits bits of a and b match
func FrameEqual(a, b []byte, nbits int) bool {
	if len(a)*8 < nbits || len(b)*8 < nbits {
		return false
	}
	full := nbits / 8
	for i := 0; i < full; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	if rem := nbits % 8; rem != 0 {
		mask := byte(0xff << uint(8-rem))
		return a[full]&mask == b[full]&mask
	}
	return true
}
