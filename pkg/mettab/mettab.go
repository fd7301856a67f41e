// Package mettab builds soft-decision log-likelihood metric tables for
// 8-bit quantized BPSK samples received over an AWGN channel.
//
// Samples are offset binary with 128 holding zero signal. A transmitted 0
// is centered at 128-signal and a transmitted 1 at 128+signal.
package mettab

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Samples is the number of distinct received sample values
const Samples = 256

// floorLog2 stands in for log2(0), a bit below the smallest double log2
const floorLog2 = -33.0

var ErrParameter = errors.New("mettab: invalid parameter")

// Table holds integer metrics indexed by [sent bit][received sample].
// It is read-only after Generate and may be shared between decoders.
type Table [2][Samples]int32

// Generate computes the metric table for the given signal and noise
// amplitudes (in sample units). bias is 0 for Viterbi decoding and the code
// rate for sequential decoding; scale converts bits to integer metric units.
func Generate(signal, noise, bias, scale float64) (*Table, error) {
	if !(noise > 0) || math.IsInf(noise, 0) {
		return nil, fmt.Errorf("%w: noise amplitude %v", ErrParameter, noise)
	}
	if !(scale > 0) || math.IsInf(scale, 0) {
		return nil, fmt.Errorf("%w: scale %v", ErrParameter, scale)
	}
	if math.IsNaN(signal) || math.IsNaN(bias) {
		return nil, fmt.Errorf("%w: NaN signal or bias", ErrParameter)
	}

	var t Table
	inv := 1 / noise
	var left0, left1 float64
	for s := 0; s < Samples; s++ {
		// Area at and below this bin minus the area below it
		right0, right1 := 1.0, 1.0
		if s != Samples-1 {
			edge := float64(s-128) + 0.5
			right0 = distuv.UnitNormal.CDF((edge + signal) * inv)
			right1 = distuv.UnitNormal.CDF((edge - signal) * inv)
		}
		p0 := right0 - left0
		p1 := right1 - left1
		left0, left1 = right0, right1

		var m0, m1 float64
		if p0 == p1 {
			// Both underflowed at an extreme sample: call it an erasure
			m0, m1 = -bias, -bias
		} else {
			m0 = llr(p0, p1, bias)
			m1 = llr(p1, p0, bias)
		}
		t[0][s] = int32(math.RoundToEven(m0 * scale))
		t[1][s] = int32(math.RoundToEven(m1 * scale))
	}
	return &t, nil
}

func llr(p, other, bias float64) float64 {
	if p == 0 {
		return floorLog2
	}
	return 1 + math.Log2(p) - math.Log2(p+other) - bias
}

// Metric returns the log-likelihood score of receiving sample given bit was sent
func (t *Table) Metric(bit uint8, sample byte) int32 {
	return t[bit&1][sample]
}

// Cost converts the metric into a non-negative branch cost, zero for the
// more likely hypothesis. Minimizing summed costs maximizes summed metrics.
func (t *Table) Cost(bit uint8, sample byte) uint32 {
	m0, m1 := t[0][sample], t[1][sample]
	best := m0
	if m1 > best {
		best = m1
	}
	return uint32(best - t[bit&1][sample])
}
