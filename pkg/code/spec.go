package code

import (
	"errors"
	"fmt"
	"math/bits"
)

const (
	// MinConstraint is the smallest supported constraint length
	MinConstraint = 3
	// MaxConstraint is the widest shift register a uint64 can hold
	MaxConstraint = 64
	// MaxRate is the most output symbols per input bit; codewords are packed into a uint8
	MaxRate = 8
)

var (
	ErrConstraint = errors.New("code: constraint length out of range")
	ErrRate       = errors.New("code: rate out of range")
	ErrPolynomial = errors.New("code: invalid polynomial")
)

// Spec describes a convolutional code: constraint length K, one generator
// polynomial per output symbol and an optional inversion flag per output.
// A Spec is immutable once built and safe to share.
type Spec struct {
	Name   string
	K      int
	Polys  []uint64
	Invert []bool

	invertMask uint8
}

// New validates and builds a Spec. invert may be nil (no inverted outputs).
func New(name string, k int, polys []uint64, invert []bool) (*Spec, error) {
	if k < MinConstraint || k > MaxConstraint {
		return nil, fmt.Errorf("%w: K=%d", ErrConstraint, k)
	}
	if len(polys) == 0 || len(polys) > MaxRate {
		return nil, fmt.Errorf("%w: %d polynomials", ErrRate, len(polys))
	}
	if invert != nil && len(invert) != len(polys) {
		return nil, fmt.Errorf("%w: %d inversion flags for %d polynomials", ErrRate, len(invert), len(polys))
	}

	regMask := Mask(k)
	for i, p := range polys {
		if p == 0 {
			return nil, fmt.Errorf("%w: polynomial %d is zero", ErrPolynomial, i)
		}
		if p&^regMask != 0 {
			return nil, fmt.Errorf("%w: polynomial %d (%#o) wider than K=%d", ErrPolynomial, i, p, k)
		}
	}

	s := &Spec{
		Name:   name,
		K:      k,
		Polys:  append([]uint64(nil), polys...),
		Invert: make([]bool, len(polys)),
	}
	if invert != nil {
		copy(s.Invert, invert)
	}
	rate := len(polys)
	for t, inv := range s.Invert {
		if inv {
			s.invertMask |= 1 << (rate - 1 - t)
		}
	}
	return s, nil
}

// Rate returns the number of output symbols per input bit
func (s *Spec) Rate() int {
	return len(s.Polys)
}

// StateBits is the width of the trellis state (K-1)
func (s *Spec) StateBits() int {
	return s.K - 1
}

// TailBits is the number of zero bits needed to flush the encoder back to state 0
func (s *Spec) TailBits() int {
	return s.K - 1
}

// States is the trellis width 2^(K-1). Only meaningful for codes a Viterbi
// decoder can hold.
func (s *Spec) States() int {
	return 1 << uint(s.K-1)
}

// StateMask masks an encoder register down to its trellis state
func (s *Spec) StateMask() uint64 {
	return Mask(s.K - 1)
}

// RegisterMask masks the full K-bit encoder register
func (s *Spec) RegisterMask() uint64 {
	return Mask(s.K)
}

// Codeword returns the symbols produced by register value reg packed into
// one byte. Tap t lands in bit Rate()-1-t, so for rate 1/2 the first
// polynomial is the high bit and the second the low bit.
func (s *Spec) Codeword(reg uint64) uint8 {
	var cw uint8
	for _, p := range s.Polys {
		cw = cw<<1 | Parity(reg&p)
	}
	return cw ^ s.invertMask
}

// Symbols appends one 0/1 symbol per tap for register value reg
func (s *Spec) Symbols(reg uint64, out []byte) []byte {
	for t, p := range s.Polys {
		sym := Parity(reg & p)
		if s.Invert[t] {
			sym ^= 1
		}
		out = append(out, sym)
	}
	return out
}

// CodeRate is the fractional code rate used as the Fano metric bias
func (s *Spec) CodeRate() float64 {
	return 1 / float64(len(s.Polys))
}

func (s *Spec) String() string {
	name := s.Name
	if name == "" {
		name = "custom"
	}
	return fmt.Sprintf("%s(K=%d r=1/%d)", name, s.K, len(s.Polys))
}

// Parity returns the XOR of all bits in x
func Parity(x uint64) uint8 {
	return uint8(bits.OnesCount64(x) & 1)
}

// Mask returns a mask of the low n bits, n in [0,64]
func Mask(n int) uint64 {
	if n <= 0 {
		return 0
	}
	if n >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(n) - 1
}
