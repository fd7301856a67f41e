package viterbi

import "github.com/dbehnke/convfec/pkg/mettab"

const (
	// DefaultRenormalization is the high-water mark at which path metrics
	// are shifted back toward zero
	DefaultRenormalization = 1 << 30
	// DefaultMemoryLimit caps the buffers a single decoder may allocate
	DefaultMemoryLimit = 1 << 30
	// HardMemoryLimit bounds every decoder regardless of WithMemoryLimit
	HardMemoryLimit = 1 << 36
)

type options struct {
	kernel      Kernel
	table       *mettab.Table
	renorm      uint32
	memoryLimit int64
}

// Option configures a Decoder
type Option func(*options)

// WithKernel overrides the kernel chosen by SelectKernel
func WithKernel(k Kernel) Option {
	return func(o *options) {
		o.kernel = k
	}
}

// WithMetricTable scores received samples with a soft-decision metric table
// instead of plain sample distance. Build the table with bias 0.
func WithMetricTable(t *mettab.Table) Option {
	return func(o *options) {
		o.table = t
	}
}

// WithRenormalization sets the renormalization high-water mark; 0 disables it
func WithRenormalization(threshold uint32) Option {
	return func(o *options) {
		o.renorm = threshold
	}
}

// WithMemoryLimit caps the bytes New may allocate for one decoder. A limit
// of 0 or less, or one above HardMemoryLimit, means HardMemoryLimit.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

func defaultOptions() options {
	return options{
		renorm:      DefaultRenormalization,
		memoryLimit: DefaultMemoryLimit,
	}
}
