package testhelpers

import (
	"math/rand"

	"github.com/dbehnke/convfec/pkg/channel"
	"github.com/dbehnke/convfec/pkg/code"
)

// RandomFrame returns nbits of random data, MSB first, whose last K-1 bits
// are zero so the frame tails the encoder back to state 0
func RandomFrame(rng *rand.Rand, spec *code.Spec, nbits int) []byte {
	data := make([]byte, (nbits+7)/8)
	rng.Read(data)
	for i := nbits - spec.TailBits(); i < len(data)*8; i++ {
		if i < 0 {
			continue
		}
		data[i>>3] &^= 0x80 >> uint(i&7)
	}
	return data
}

// HardSamples maps 0/1 symbols to the 0/255 sample extremes
func HardSamples(symbols []byte) []byte {
	return channel.Modulate(symbols, 128)
}

// FlipSamples inverts every stride-th sample starting at offset
func FlipSamples(samples []byte, offset, stride int) []byte {
	out := append([]byte(nil), samples...)
	for i := offset; i < len(out); i += stride {
		out[i] = 255 - out[i]
	}
	return out
}

// Bit returns bit i of p, MSB first
func Bit(p []byte, i int) uint8 {
	return (p[i>>3] >> (7 - uint(i&7))) & 1
}
