package viterbi

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ParallelThreshold is the trellis size from which SelectKernel spreads a
// step across goroutines
const ParallelThreshold = 1 << 12

// Step is one decoding step's worth of input for a Kernel
type Step struct {
	Old       []uint32 // path metrics before the step, one per state
	New       []uint32 // path metrics after the step
	Decisions []uint64 // zeroed decision words for this step, bit s for state s
	Branch    []uint32 // branch cost indexed by packed codeword
	Codeword  []uint8  // packed codeword indexed by K-bit encoder register
	Half      int      // 2^(K-2), the number of butterflies
}

// Kernel performs the add-compare-select butterflies of one step and
// returns the smallest new path metric. Every kernel must produce exactly
// the metrics and decisions of Butterflies.
type Kernel interface {
	Name() string
	Update(s *Step) uint32
}

// Butterflies runs butterflies lo..hi-1. Butterfly i feeds new states 2i and
// 2i+1 from predecessors i and i+Half. On equal metrics the lower
// predecessor survives and the decision bit stays 0.
func Butterflies(s *Step, lo, hi int) uint32 {
	top := s.Half << 1
	min := ^uint32(0)
	for i := lo; i < hi; i++ {
		m0 := s.Old[i]
		m1 := s.Old[i+s.Half]
		for b := 0; b < 2; b++ {
			st := i<<1 | b
			a := m0 + s.Branch[s.Codeword[st]]
			c := m1 + s.Branch[s.Codeword[st|top]]
			if c < a {
				a = c
				s.Decisions[st>>6] |= 1 << uint(st&63)
			}
			s.New[st] = a
			if a < min {
				min = a
			}
		}
	}
	return min
}

// Portable is the sequential reference kernel
type Portable struct{}

func (Portable) Name() string { return "portable" }

func (Portable) Update(s *Step) uint32 {
	return Butterflies(s, 0, s.Half)
}

// Parallel splits the butterflies of a step across worker goroutines. Each
// worker owns whole 64-state decision words, so no two workers touch the
// same word and the result is identical to Portable.
type Parallel struct {
	workers int
}

// NewParallel creates a parallel kernel; workers <= 0 uses every CPU
func NewParallel(workers int) *Parallel {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Parallel{workers: workers}
}

func (p *Parallel) Name() string { return "parallel" }

// Workers returns the number of goroutines used per step
func (p *Parallel) Workers() int { return p.workers }

func (p *Parallel) Update(s *Step) uint32 {
	// 32 butterflies fill one decision word
	chunk := (s.Half + p.workers - 1) / p.workers
	chunk = (chunk + 31) &^ 31
	if chunk >= s.Half {
		return Butterflies(s, 0, s.Half)
	}

	n := (s.Half + chunk - 1) / chunk
	mins := make([]uint32, n)
	var g errgroup.Group
	for w := 0; w < n; w++ {
		w := w
		lo := w * chunk
		hi := lo + chunk
		if hi > s.Half {
			hi = s.Half
		}
		g.Go(func() error {
			mins[w] = Butterflies(s, lo, hi)
			return nil
		})
	}
	_ = g.Wait()

	min := mins[0]
	for _, m := range mins[1:] {
		if m < min {
			min = m
		}
	}
	return min
}

// SelectKernel picks the kernel for a trellis of the given number of
// states, once, when a decoder is built
func SelectKernel(states int) Kernel {
	if states >= ParallelThreshold && runtime.NumCPU() > 1 {
		return NewParallel(0)
	}
	return Portable{}
}
