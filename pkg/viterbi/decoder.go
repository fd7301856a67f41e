package viterbi

// Generic Viterbi decoder for any code.Spec small enough to hold its whole
// trellis in memory. One Decoder decodes one frame at a time; run several
// decoders for concurrent frames.

import (
	"errors"
	"fmt"

	"github.com/dbehnke/convfec/pkg/code"
)

// Unreached is the starting path metric of every state other than the
// known start state
const Unreached = 1 << 20

// maxStateBits keeps size arithmetic inside int64
const maxStateBits = 40

var (
	ErrAllocation     = errors.New("viterbi: decoder too large to allocate")
	ErrNotInitialized = errors.New("viterbi: decoder not initialized")
	ErrClosed         = errors.New("viterbi: decoder closed")
	ErrFrameOverrun   = errors.New("viterbi: more steps than the decoder was created for")
	ErrShortInput     = errors.New("viterbi: not enough symbols")
	ErrChainback      = errors.New("viterbi: invalid chainback request")
)

type decoderState int

const (
	stateNotStarted decoderState = iota
	stateInitialized
	stateAccumulating
	stateChained
	stateClosed
)

// Decoder is a Viterbi decoder instance
type Decoder struct {
	spec    *code.Spec
	maxBits int
	kernel  Kernel
	renorm  uint32

	half   int
	states int
	words  int // decision words per step

	codeword  []uint8
	symCost   [2][256]uint32
	branch    []uint32
	metrics1  []uint32
	metrics2  []uint32
	old       []uint32
	new       []uint32
	decisions []uint64
	dp        int // steps recorded

	renorms int
	state   decoderState
}

// New creates a decoder for frames of up to maxBits decoding steps
func New(spec *code.Spec, maxBits int, opts ...Option) (*Decoder, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if maxBits <= 0 {
		return nil, fmt.Errorf("%w: maxBits %d", ErrFrameOverrun, maxBits)
	}

	size, err := footprint(spec, maxBits)
	if err != nil {
		return nil, err
	}
	limit := o.memoryLimit
	if limit <= 0 || limit > HardMemoryLimit {
		limit = HardMemoryLimit
	}
	if size > limit {
		return nil, fmt.Errorf("%w: %s needs %d bytes, limit %d", ErrAllocation, spec, size, limit)
	}

	states := 1 << uint(spec.K-1)
	d := &Decoder{
		spec:    spec,
		maxBits: maxBits,
		kernel:  o.kernel,
		renorm:  o.renorm,
		half:    states >> 1,
		states:  states,
		words:   decisionWords(states),
	}
	if d.kernel == nil {
		d.kernel = SelectKernel(states)
	}

	// Codewords for every K-bit register, built once per decoder
	d.codeword = make([]uint8, 2*states)
	for reg := range d.codeword {
		d.codeword[reg] = spec.Codeword(uint64(reg))
	}

	for s := 0; s < 256; s++ {
		if o.table != nil {
			d.symCost[0][s] = o.table.Cost(0, byte(s))
			d.symCost[1][s] = o.table.Cost(1, byte(s))
		} else {
			d.symCost[0][s] = uint32(s)
			d.symCost[1][s] = uint32(255 - s)
		}
	}

	d.branch = make([]uint32, 1<<uint(spec.Rate()))
	d.metrics1 = make([]uint32, states)
	d.metrics2 = make([]uint32, states)
	d.decisions = make([]uint64, maxBits*d.words)

	if err := d.Init(0); err != nil {
		return nil, err
	}
	return d, nil
}

func decisionWords(states int) int {
	if states < 64 {
		return 1
	}
	return states / 64
}

// footprint estimates the bytes New allocates
func footprint(spec *code.Spec, maxBits int) (int64, error) {
	if spec.K-1 > maxStateBits {
		return 0, fmt.Errorf("%w: K=%d", ErrAllocation, spec.K)
	}
	states := int64(1) << uint(spec.K-1)
	words := int64(decisionWords(int(states)))
	if int64(maxBits) > (1<<62)/(8*words) {
		return 0, fmt.Errorf("%w: %d steps", ErrAllocation, maxBits)
	}
	return 2*states + 2*4*states + int64(maxBits)*words*8, nil
}

// Init prepares the decoder for a new frame starting in startState. The
// start state gets metric 0 and every other state Unreached.
func (d *Decoder) Init(startState uint64) error {
	if d.state == stateClosed {
		return ErrClosed
	}
	for i := range d.metrics1 {
		d.metrics1[i] = Unreached
	}
	d.old = d.metrics1
	d.new = d.metrics2
	d.old[startState&d.spec.StateMask()] = 0
	d.dp = 0
	d.renorms = 0
	d.state = stateInitialized
	return nil
}

// UpdateBlock runs nbits decoding steps, consuming Rate() symbols each
func (d *Decoder) UpdateBlock(symbols []byte, nbits int) error {
	switch d.state {
	case stateClosed:
		return ErrClosed
	case stateInitialized, stateAccumulating:
	default:
		return ErrNotInitialized
	}
	rate := d.spec.Rate()
	if nbits < 0 || len(symbols) < nbits*rate {
		return fmt.Errorf("%w: %d symbols for %d steps", ErrShortInput, len(symbols), nbits)
	}
	if d.dp+nbits > d.maxBits {
		return fmt.Errorf("%w: %d+%d > %d", ErrFrameOverrun, d.dp, nbits, d.maxBits)
	}

	step := Step{
		Branch:   d.branch,
		Codeword: d.codeword,
		Half:     d.half,
	}
	for n := 0; n < nbits; n++ {
		d.branchCosts(symbols[n*rate : (n+1)*rate])

		dec := d.decisions[d.dp*d.words : (d.dp+1)*d.words]
		for i := range dec {
			dec[i] = 0
		}
		step.Old, step.New, step.Decisions = d.old, d.new, dec
		min := d.kernel.Update(&step)

		if d.renorm != 0 && min >= d.renorm {
			for i := range d.new {
				d.new[i] -= min
			}
			d.renorms++
		}

		d.dp++
		// Swap metrics
		d.old, d.new = d.new, d.old
	}
	d.state = stateAccumulating
	return nil
}

// branchCosts fills d.branch for one received symbol group
func (d *Decoder) branchCosts(syms []byte) {
	rate := len(syms)
	for cw := range d.branch {
		var cost uint32
		for t, s := range syms {
			cost += d.symCost[(cw>>uint(rate-1-t))&1][s]
		}
		d.branch[cw] = cost
	}
}

// Chainback traces the survivors back from endState and writes the
// decoded bits of the first nbits steps into out, MSB first. Recorded steps
// past nbits are treated as tail: walked, not emitted.
func (d *Decoder) Chainback(out []byte, nbits int, endState uint64) error {
	switch d.state {
	case stateClosed:
		return ErrClosed
	case stateAccumulating, stateChained:
	default:
		return ErrNotInitialized
	}
	if nbits < 0 || nbits > d.dp {
		return fmt.Errorf("%w: %d bits from %d steps", ErrChainback, nbits, d.dp)
	}
	if len(out)*8 < nbits {
		return fmt.Errorf("%w: output holds %d bits, need %d", ErrChainback, len(out)*8, nbits)
	}

	shift := uint(d.spec.K - 2)
	state := endState & d.spec.StateMask()
	for step := d.dp - 1; step >= 0; step-- {
		if step < nbits {
			writeBit(out, step, state&1 != 0)
		}
		w := d.decisions[step*d.words+int(state>>6)]
		bit := (w >> (state & 63)) & 1
		state = bit<<shift | state>>1
	}
	d.state = stateChained
	return nil
}

// Close releases the decoder's buffers
func (d *Decoder) Close() {
	d.codeword = nil
	d.branch = nil
	d.metrics1, d.metrics2 = nil, nil
	d.old, d.new = nil, nil
	d.decisions = nil
	d.state = stateClosed
}

// Steps returns the number of decision records held
func (d *Decoder) Steps() int {
	return d.dp
}

// MaxBits returns the frame capacity in decoding steps
func (d *Decoder) MaxBits() int {
	return d.maxBits
}

// Renormalizations returns how often metrics were renormalized this frame
func (d *Decoder) Renormalizations() int {
	return d.renorms
}

// Kernel returns the kernel chosen for this decoder
func (d *Decoder) Kernel() Kernel {
	return d.kernel
}

// Metric returns the current path metric of a state
func (d *Decoder) Metric(state uint64) uint32 {
	return d.old[state&d.spec.StateMask()]
}

// BestState returns the state with the smallest path metric; ties go to
// the lowest state
func (d *Decoder) BestState() (uint64, uint32) {
	best := 0
	for i, m := range d.old {
		if m < d.old[best] {
			best = i
		}
	}
	return uint64(best), d.old[best]
}

// Decode runs a whole tailed frame of nbits steps (tail included) through
// a fresh decoder and returns the decoded bits, MSB first
func Decode(spec *code.Spec, symbols []byte, nbits int, opts ...Option) ([]byte, error) {
	d, err := New(spec, nbits, opts...)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	if err := d.UpdateBlock(symbols, nbits); err != nil {
		return nil, err
	}
	out := make([]byte, (nbits+7)/8)
	if err := d.Chainback(out, nbits, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// Bit manipulation helpers
var bitMaskTable = []byte{0x80, 0x40, 0x20, 0x10, 0x08, 0x04, 0x02, 0x01}

func writeBit(p []byte, i int, b bool) {
	if b {
		p[i>>3] |= bitMaskTable[i&7]
	} else {
		p[i>>3] &= ^bitMaskTable[i&7]
	}
}
