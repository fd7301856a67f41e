// Package hybrid decodes with the Fano algorithm and falls back to Viterbi
// when Fano runs out of moves. Fano is fast on a clean channel; Viterbi
// always finishes in bounded time.
package hybrid

import (
	"errors"
	"fmt"

	"github.com/dbehnke/convfec/pkg/code"
	"github.com/dbehnke/convfec/pkg/fano"
	"github.com/dbehnke/convfec/pkg/mettab"
	"github.com/dbehnke/convfec/pkg/viterbi"
)

// Method names the decoder that produced a result
type Method string

const (
	MethodFano    Method = "fano"
	MethodViterbi Method = "viterbi"
)

var ErrParameter = errors.New("hybrid: invalid parameter")

// Config holds the Fano search parameters
type Config struct {
	Table           *mettab.Table // Fano metric table, bias = code rate
	Delta           int64
	MaxCyclesPerBit int
}

// Result of one hybrid decode
type Result struct {
	Data     []byte
	Method   Method
	Fallback bool         // Fano timed out and Viterbi produced Data
	Fano     *fano.Result // always set, partial when Fallback is true
}

// Decoder owns a reusable Viterbi decoder sized for maxBits. Not safe for
// concurrent use; give each goroutine its own.
type Decoder struct {
	spec *code.Spec
	cfg  Config
	vit  *viterbi.Decoder
}

// New creates a hybrid decoder. opts configure the fallback Viterbi decoder.
func New(spec *code.Spec, cfg Config, maxBits int, opts ...viterbi.Option) (*Decoder, error) {
	if cfg.Table == nil {
		return nil, fmt.Errorf("%w: nil Fano metric table", ErrParameter)
	}
	if cfg.Delta <= 0 {
		return nil, fmt.Errorf("%w: delta %d", ErrParameter, cfg.Delta)
	}
	vit, err := viterbi.New(spec, maxBits, opts...)
	if err != nil {
		return nil, fmt.Errorf("hybrid: fallback decoder: %w", err)
	}
	return &Decoder{spec: spec, cfg: cfg, vit: vit}, nil
}

// Decode decodes one tailed frame of nbits bits (tail included)
func (d *Decoder) Decode(symbols []byte, nbits int) (*Result, error) {
	fr, err := fano.Decode(d.spec, symbols, nbits, d.cfg.Table, d.cfg.Delta, d.cfg.MaxCyclesPerBit)
	switch {
	case err == nil:
		return &Result{Data: fr.Data, Method: MethodFano, Fano: fr}, nil
	case !errors.Is(err, fano.ErrTimeout):
		return nil, err
	}

	if err := d.vit.Init(0); err != nil {
		return nil, err
	}
	if err := d.vit.UpdateBlock(symbols, nbits); err != nil {
		return nil, err
	}
	data := make([]byte, (nbits+7)/8)
	if err := d.vit.Chainback(data, nbits, 0); err != nil {
		return nil, err
	}
	return &Result{Data: data, Method: MethodViterbi, Fallback: true, Fano: fr}, nil
}

// Viterbi exposes the fallback decoder, mainly for its counters
func (d *Decoder) Viterbi() *viterbi.Decoder {
	return d.vit
}

// Close releases the fallback decoder
func (d *Decoder) Close() {
	d.vit.Close()
}
