package encoder

// Convolutional encoder for any code.Spec.
// Input bytes are read MSB first; the output is one symbol (0 or 1) per
// byte, Rate() symbols per input bit in polynomial order.

import (
	"errors"
	"fmt"

	"github.com/dbehnke/convfec/pkg/code"
)

var (
	// ErrUntailedFrame means the frame did not end with K-1 zero bits, so
	// the encoder was not flushed back to state 0. Always a caller error.
	ErrUntailedFrame = errors.New("encoder: frame not tailed back to state 0")
	ErrBitCount      = errors.New("encoder: bit count exceeds input")
)

// Encoder holds the shift register between calls
type Encoder struct {
	spec *code.Spec
	reg  uint64
}

// New creates an encoder in state 0
func New(spec *code.Spec) *Encoder {
	return &Encoder{spec: spec}
}

// Reset returns the register to 0
func (e *Encoder) Reset() {
	e.reg = 0
}

// State returns the current K-1 bit trellis state
func (e *Encoder) State() uint64 {
	return e.reg & e.spec.StateMask()
}

// Tailed reports whether the encoder is back in state 0
func (e *Encoder) Tailed() bool {
	return e.State() == 0
}

// EncodeBit shifts one bit into the register and appends its symbols
func (e *Encoder) EncodeBit(bit uint8, out []byte) []byte {
	e.reg = (e.reg<<1 | uint64(bit&1)) & e.spec.RegisterMask()
	return e.spec.Symbols(e.reg, out)
}

// Write encodes the first nbits bits of data, appending to out
func (e *Encoder) Write(data []byte, nbits int, out []byte) ([]byte, error) {
	if nbits < 0 || nbits > 8*len(data) {
		return out, fmt.Errorf("%w: %d bits from %d bytes", ErrBitCount, nbits, len(data))
	}
	for i := 0; i < nbits; i++ {
		out = e.EncodeBit(data[i>>3]>>(7-uint(i&7)), out)
	}
	return out, nil
}

// Encode encodes nbits bits of data starting from state 0. The symbols are
// returned even when the frame is untailed, together with ErrUntailedFrame.
func Encode(spec *code.Spec, data []byte, nbits int) ([]byte, error) {
	if nbits < 0 || nbits > 8*len(data) {
		return nil, fmt.Errorf("%w: %d bits from %d bytes", ErrBitCount, nbits, len(data))
	}
	e := New(spec)
	out, err := e.Write(data, nbits, make([]byte, 0, nbits*spec.Rate()))
	if err != nil {
		return nil, err
	}
	if !e.Tailed() {
		return out, fmt.Errorf("%w: final state %#x", ErrUntailedFrame, e.State())
	}
	return out, nil
}

// EncodeBytes encodes every bit of data
func EncodeBytes(spec *code.Spec, data []byte) ([]byte, error) {
	return Encode(spec, data, 8*len(data))
}
