// Package harness runs encode, channel and decode trials and measures bit
// and frame error rates, Fano cycle counts and Viterbi fallbacks.
package harness

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dbehnke/convfec/pkg/channel"
	"github.com/dbehnke/convfec/pkg/code"
	"github.com/dbehnke/convfec/pkg/encoder"
	"github.com/dbehnke/convfec/pkg/fano"
	"github.com/dbehnke/convfec/pkg/hybrid"
	"github.com/dbehnke/convfec/pkg/logger"
	"github.com/dbehnke/convfec/pkg/mettab"
	"github.com/dbehnke/convfec/pkg/viterbi"
)

// Frame is the outcome of one trial
type Frame struct {
	Trial            int
	Decoder          DecoderKind
	Method           string // decoder that produced the bits
	Decoded          bool   // decoder reported success
	Correct          bool   // decoded bits equal the sent frame
	Fallback         bool
	BitErrors        int
	Cycles           int64 // Fano moves, 0 for Viterbi
	Renormalizations int
	Bits             int
	Elapsed          time.Duration
}

// Outcome classifies a frame: good, failed (reported by the decoder) or
// undetected (decoder claimed success but the bits are wrong)
func (f Frame) Outcome() string {
	switch {
	case f.Correct:
		return "good"
	case !f.Decoded:
		return "failed"
	default:
		return "undetected"
	}
}

// Recorder receives every finished frame. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordFrame(f Frame)
}

// Runner executes a batch of trials
type Runner struct {
	cfg  Config
	spec *code.Spec
	log  *logger.Logger
	rec  Recorder

	noise       float64
	fanoTable   *mettab.Table
	viterbiOpts []viterbi.Option
}

// NewRunner validates cfg and builds the shared metric tables
func NewRunner(cfg Config, log *logger.Logger, rec Recorder) (*Runner, error) {
	spec, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	r := &Runner{
		cfg:   cfg,
		spec:  spec,
		log:   log.WithComponent("harness"),
		rec:   rec,
		noise: channel.NoiseAmplitude(cfg.Signal, cfg.EbN0, spec.CodeRate()),
	}

	if cfg.Decoder != DecoderViterbi {
		r.fanoTable, err = mettab.Generate(cfg.Signal, r.noise, spec.CodeRate(), cfg.Scale)
		if err != nil {
			return nil, fmt.Errorf("harness: fano metric table: %w", err)
		}
	}
	if cfg.SoftViterbi {
		table, err := mettab.Generate(cfg.Signal, r.noise, 0, cfg.Scale)
		if err != nil {
			return nil, fmt.Errorf("harness: viterbi metric table: %w", err)
		}
		r.viterbiOpts = append(r.viterbiOpts, viterbi.WithMetricTable(table))
	}
	if cfg.Renormalization != 0 {
		r.viterbiOpts = append(r.viterbiOpts, viterbi.WithRenormalization(cfg.Renormalization))
	}
	return r, nil
}

// Config returns the resolved configuration, including the chosen seed
func (r *Runner) Config() Config {
	return r.cfg
}

// Spec returns the code under test
func (r *Runner) Spec() *code.Spec {
	return r.spec
}

// Run executes the trials across the configured workers. Cancelling ctx
// stops the batch early; the summary then covers the frames completed.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	cfg := r.cfg
	r.log.Info("Starting trials",
		logger.String("code", r.spec.String()),
		logger.String("decoder", string(cfg.Decoder)),
		logger.Int("frame_bits", cfg.FrameBits),
		logger.Int("trials", cfg.Trials),
		logger.Float64("ebn0_db", cfg.EbN0),
		logger.Float64("noise", r.noise),
		logger.Int("workers", cfg.Workers),
		logger.Int64("seed", cfg.Seed))

	sum := newSummary(cfg, r.spec, r.noise)
	start := time.Now()

	workers := make([]*worker, 0, cfg.Workers)
	for id := 0; id < cfg.Workers; id++ {
		w, err := r.newWorker(id)
		if err != nil {
			for _, w := range workers {
				w.close()
			}
			return nil, err
		}
		workers = append(workers, w)
	}

	var next atomic.Int64
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			defer w.close()
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				trial := int(next.Add(1) - 1)
				if trial >= cfg.Trials {
					return nil
				}

				f, err := w.trial(trial)
				if err != nil {
					return fmt.Errorf("trial %d: %w", trial, err)
				}
				if r.rec != nil {
					r.rec.RecordFrame(f)
				}

				mu.Lock()
				sum.add(f)
				done := sum.Frames
				mu.Unlock()

				if !f.Correct {
					r.log.Debug("Frame error",
						logger.Int("trial", f.Trial),
						logger.String("outcome", f.Outcome()),
						logger.String("method", f.Method),
						logger.Int("bit_errors", f.BitErrors),
						logger.Int64("cycles", f.Cycles))
				}
				if cfg.ProgressEvery > 0 && done%cfg.ProgressEvery == 0 {
					r.log.Info("Progress", logger.Int("frames", done), logger.Int("trials", cfg.Trials))
				}
			}
		})
	}

	err := g.Wait()
	sum.finish(time.Since(start))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.log.Warn("Trials cancelled", logger.Int("frames", sum.Frames))
		}
		return sum, err
	}

	r.log.Info("Trials complete",
		logger.Int("frames", sum.Frames),
		logger.Int("good", sum.Good),
		logger.Int("failed", sum.Failed),
		logger.Int("undetected", sum.Undetected),
		logger.Float64("ber", sum.BER),
		logger.Float64("fer", sum.FER),
		logger.Float64("cycles_per_bit", sum.CyclesPerBit))
	return sum, nil
}

// worker owns everything one goroutine needs to run trials
type worker struct {
	r    *Runner
	rng  *rand.Rand
	ch   *channel.AWGN
	vit  *viterbi.Decoder
	hyb  *hybrid.Decoder
	data []byte
	out  []byte
}

func (r *Runner) newWorker(id int) (*worker, error) {
	seed := r.cfg.Seed + int64(id)*7919
	ch, err := channel.NewAWGN(r.cfg.Signal, r.noise, seed+1)
	if err != nil {
		return nil, fmt.Errorf("harness: channel: %w", err)
	}
	w := &worker{
		r:    r,
		rng:  rand.New(rand.NewSource(seed)),
		ch:   ch,
		data: make([]byte, r.cfg.FrameBits/8),
		out:  make([]byte, r.cfg.FrameBits/8),
	}

	switch r.cfg.Decoder {
	case DecoderViterbi:
		w.vit, err = viterbi.New(r.spec, r.cfg.FrameBits, r.viterbiOpts...)
	case DecoderHybrid:
		w.hyb, err = hybrid.New(r.spec, hybrid.Config{
			Table:           r.fanoTable,
			Delta:           r.delta(),
			MaxCyclesPerBit: r.cfg.MaxCycles,
		}, r.cfg.FrameBits, r.viterbiOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("harness: decoder: %w", err)
	}
	return w, nil
}

func (r *Runner) delta() int64 {
	return int64(float64(r.cfg.Delta) * r.cfg.Scale)
}

func (w *worker) close() {
	if w.vit != nil {
		w.vit.Close()
	}
	if w.hyb != nil {
		w.hyb.Close()
	}
}

// fill writes random data with the tail bytes zeroed
func (w *worker) fill() {
	for i := range w.data {
		w.data[i] = 0
	}
	if w.r.cfg.ZeroData {
		return
	}
	w.rng.Read(w.data[:len(w.data)-tailBytes(w.r.spec)])
}

func (w *worker) trial(n int) (Frame, error) {
	cfg := &w.r.cfg
	nbits := cfg.FrameBits
	f := Frame{Trial: n, Decoder: cfg.Decoder, Bits: nbits}

	w.fill()
	syms, err := encoder.Encode(w.r.spec, w.data, nbits)
	if err != nil {
		return f, err
	}
	samples := w.ch.Transmit(syms)

	start := time.Now()
	var decoded []byte
	switch cfg.Decoder {
	case DecoderViterbi:
		if err := w.vit.Init(0); err != nil {
			return f, err
		}
		if err := w.vit.UpdateBlock(samples, nbits); err != nil {
			return f, err
		}
		if err := w.vit.Chainback(w.out, nbits, 0); err != nil {
			return f, err
		}
		decoded = w.out
		f.Method = string(DecoderViterbi)
		f.Decoded = true
		f.Renormalizations = w.vit.Renormalizations()

	case DecoderFano:
		res, err := fano.Decode(w.r.spec, samples, nbits, w.r.fanoTable, w.r.delta(), cfg.MaxCycles)
		if err != nil && !errors.Is(err, fano.ErrTimeout) {
			return f, err
		}
		decoded = res.Data
		f.Method = string(DecoderFano)
		f.Decoded = err == nil
		f.Cycles = res.Cycles

	case DecoderHybrid:
		res, err := w.hyb.Decode(samples, nbits)
		if err != nil {
			return f, err
		}
		decoded = res.Data
		f.Method = string(res.Method)
		f.Decoded = true
		f.Fallback = res.Fallback
		f.Cycles = res.Fano.Cycles
		if res.Fallback {
			f.Renormalizations = w.hyb.Viterbi().Renormalizations()
		}
	}
	f.Elapsed = time.Since(start)

	f.score(w.data, decoded)
	return f, nil
}

// score compares the decoded frame with the one sent. A decoded frame
// shorter than Bits is never correct.
func (f *Frame) score(sent, decoded []byte) {
	f.BitErrors = channel.BitErrors(sent, decoded)
	f.Correct = channel.FrameEqual(sent, decoded, f.Bits)
}
