// Package fano implements a soft-decision Fano sequential decoder for any
// code.Spec, including long constraint lengths no trellis decoder can hold.
//
// The decoder keeps one node per input bit and walks forward and backward
// along the frame under a threshold that moves in delta steps. Memory is
// linear in the frame length; running time depends on channel quality and
// is capped by a move budget.
package fano

import (
	"errors"
	"fmt"

	"github.com/dbehnke/convfec/pkg/code"
	"github.com/dbehnke/convfec/pkg/mettab"
)

// MaxFrameBits bounds the node array of a single decode
const MaxFrameBits = 1 << 24

var (
	// ErrTimeout is returned together with a populated Result when the move
	// budget runs out before the end of the frame
	ErrTimeout     = errors.New("fano: decoder timed out")
	ErrShortInput  = errors.New("fano: not enough symbols")
	ErrFrameLength = errors.New("fano: invalid frame length")
	ErrParameter   = errors.New("fano: invalid parameter")
)

// Result describes one decode. On timeout it holds the partial path.
type Result struct {
	Data        []byte // decoded bits, MSB first, tail included
	Metric      int64  // gamma of the last node reached, excluding its outgoing branch
	Cycles      int64  // moves executed
	Threshold   int64  // threshold when the search stopped
	Relaxations int    // threshold decreases
	Tightenings int    // threshold increases
	Backtracks  int    // backward moves
	MaxDepth    int    // deepest node reached
}

// node is the search state at one depth
type node struct {
	encstate uint64   // encoder register after this node's bit
	gamma    int64    // cumulative metric up to this node
	tm       [2]int64 // branch metrics, best first
	i        int      // branch being tried
}

type decoder struct {
	spec    *code.Spec
	symbols []byte
	table   *mettab.Table
	rate    int
	tail    int
	nodes   []node
	tracer  func(Event)
}

// Decode runs the Fano algorithm over a tailed frame of nbits bits (tail
// included). table must be built with bias equal to the code rate. The
// budget is maxCyclesPerBit*nbits moves; exhausting it returns ErrTimeout
// with the partial result.
func Decode(spec *code.Spec, symbols []byte, nbits int, table *mettab.Table, delta int64, maxCyclesPerBit int, opts ...Option) (*Result, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if nbits < spec.K || nbits > MaxFrameBits {
		return nil, fmt.Errorf("%w: %d bits for K=%d", ErrFrameLength, nbits, spec.K)
	}
	if len(symbols) < nbits*spec.Rate() {
		return nil, fmt.Errorf("%w: %d symbols for %d bits", ErrShortInput, len(symbols), nbits)
	}
	if table == nil {
		return nil, fmt.Errorf("%w: nil metric table", ErrParameter)
	}
	if delta <= 0 {
		return nil, fmt.Errorf("%w: delta %d", ErrParameter, delta)
	}
	if maxCyclesPerBit < 0 {
		return nil, fmt.Errorf("%w: maxCyclesPerBit %d", ErrParameter, maxCyclesPerBit)
	}

	d := &decoder{
		spec:    spec,
		symbols: symbols,
		table:   table,
		rate:    spec.Rate(),
		tail:    nbits - spec.TailBits(),
		nodes:   make([]node, nbits),
		tracer:  o.tracer,
	}
	return d.run(delta, int64(maxCyclesPerBit)*int64(nbits))
}

func (d *decoder) run(delta, budget int64) (*Result, error) {
	res := &Result{}
	nodes := d.nodes
	last := len(nodes) - 1

	np := 0
	d.enter(np)
	var t int64
	done := false

	for res.Cycles < budget {
		res.Cycles++

		// Look forward
		n := &nodes[np]
		ngamma := n.gamma + n.tm[n.i]
		if ngamma >= t {
			if n.gamma < t+delta {
				// First visit: tighten
				old := t
				for ngamma >= t+delta {
					t += delta
				}
				if t != old {
					res.Tightenings++
					d.trace(Event{Kind: Tighten, Depth: np, Cycle: res.Cycles, Old: old, New: t})
				}
			}
			if np == last {
				done = true
				break
			}
			np++
			if np > res.MaxDepth {
				res.MaxDepth = np
			}
			nodes[np].gamma = ngamma
			nodes[np].encstate = n.encstate << 1
			d.enter(np)
			continue
		}

		// Threshold violated; look backward
		for {
			if np == 0 || nodes[np-1].gamma < t {
				old := t
				t -= delta
				res.Relaxations++
				d.trace(Event{Kind: Relax, Depth: np, Cycle: res.Cycles, Old: old, New: t})
				if nodes[np].i != 0 {
					nodes[np].i = 0
					nodes[np].encstate ^= 1
				}
				break
			}
			np--
			res.Backtracks++
			if np < d.tail && nodes[np].i != 1 {
				// Try the other branch
				nodes[np].i++
				nodes[np].encstate ^= 1
				break
			}
		}
	}

	res.Metric = nodes[np].gamma
	res.Threshold = t
	res.Data = make([]byte, (len(nodes)+7)/8)
	for i := range nodes {
		if nodes[i].encstate&1 != 0 {
			res.Data[i>>3] |= 0x80 >> uint(i&7)
		}
	}

	if !done {
		return res, fmt.Errorf("%w after %d cycles at depth %d", ErrTimeout, res.Cycles, np)
	}
	return res, nil
}

// enter computes and sorts the branch metrics of the node at depth. Only
// this depth's symbols are read. In the tail the input is known to be 0,
// so only the 0 branch is scored. Equal metrics try the 0 branch first.
func (d *decoder) enter(depth int) {
	n := &d.nodes[depth]
	n.i = 0
	syms := d.symbols[depth*d.rate : (depth+1)*d.rate]

	m0 := d.branchMetric(n.encstate, syms)
	if depth >= d.tail {
		n.tm[0] = m0
		return
	}
	m1 := d.branchMetric(n.encstate|1, syms)
	if m0 >= m1 {
		n.tm[0], n.tm[1] = m0, m1
	} else {
		n.tm[0], n.tm[1] = m1, m0
		n.encstate |= 1
	}
}

func (d *decoder) branchMetric(reg uint64, syms []byte) int64 {
	cw := d.spec.Codeword(reg)
	var m int64
	for t, s := range syms {
		m += int64(d.table.Metric((cw>>uint(d.rate-1-t))&1, s))
	}
	return m
}

func (d *decoder) trace(e Event) {
	if d.tracer != nil {
		d.tracer(e)
	}
}
