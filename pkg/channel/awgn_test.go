package channel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAWGN_InvalidParameters(t *testing.T) {
	tests := []struct {
		name          string
		signal, noise float64
	}{
		{"zero noise", 30, 0},
		{"negative noise", 30, -1},
		{"negative signal", -1, 10},
		{"signal too large", 200, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAWGN(tt.signal, tt.noise, 1)
			assert.True(t, errors.Is(err, ErrParameter))
		})
	}
}

func TestAWGN_Deterministic(t *testing.T) {
	symbols := []byte{0, 1, 1, 0, 1, 0, 0, 1, 1, 1, 0, 0}

	a, err := NewAWGN(30, 20, 99)
	require.NoError(t, err)
	b, err := NewAWGN(30, 20, 99)
	require.NoError(t, err)

	assert.Equal(t, a.Transmit(symbols), b.Transmit(symbols))
}

func TestAWGN_SampleDistribution(t *testing.T) {
	c, err := NewAWGN(30, 10, 5)
	require.NoError(t, err)

	const n = 20000
	var sum [2]float64
	for i := 0; i < n; i++ {
		sum[0] += float64(c.Simulate(0))
		sum[1] += float64(c.Simulate(1))
	}
	// Bins are centered half a sample below their right edge
	assert.InDelta(t, 98, sum[0]/n, 0.6)
	assert.InDelta(t, 158, sum[1]/n, 0.6)
}

func TestAWGN_LowNoise(t *testing.T) {
	c, err := NewAWGN(30, 1, 3)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		s0 := int(c.Simulate(0))
		s1 := int(c.Simulate(1))
		assert.InDelta(t, 98, s0, 6)
		assert.InDelta(t, 158, s1, 6)
	}
}

func TestNoiseAmplitude(t *testing.T) {
	assert.InDelta(t, 23.830, NoiseAmplitude(30, 2.0, 0.5), 0.001)
	// 0 dB at rate 1/2 leaves noise equal to signal
	assert.InDelta(t, 30.0, NoiseAmplitude(30, 0, 0.5), 1e-9)
}

func TestModulate(t *testing.T) {
	assert.Equal(t, []byte{98, 158, 158, 98}, Modulate([]byte{0, 1, 1, 0}, 30))
	assert.Equal(t, []byte{0, 255}, Modulate([]byte{0, 1}, 128))
}

func TestBitErrors(t *testing.T) {
	assert.Equal(t, 0, BitErrors([]byte{0xaa, 0x55}, []byte{0xaa, 0x55}))
	assert.Equal(t, 9, BitErrors([]byte{0xff, 0x01}, []byte{0x00, 0x00}))
	assert.Equal(t, 1, BitErrors([]byte{0x01, 0xff}, []byte{0x00}))
}

func TestFrameEqual(t *testing.T) {
	a := []byte{0xde, 0xad, 0xb0}
	b := []byte{0xde, 0xad, 0xbf}

	assert.True(t, FrameEqual(a, b, 16))
	assert.True(t, FrameEqual(a, b, 20))
	assert.False(t, FrameEqual(a, b, 21))
	assert.False(t, FrameEqual(a, b, 25), "more bits than either frame holds")
}
