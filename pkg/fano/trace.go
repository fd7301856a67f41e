package fano

// EventKind identifies a threshold change
type EventKind int

const (
	// Tighten raises the threshold on a node's first visit
	Tighten EventKind = iota
	// Relax lowers the threshold by delta at a dead end
	Relax
)

func (k EventKind) String() string {
	switch k {
	case Tighten:
		return "tighten"
	case Relax:
		return "relax"
	default:
		return "unknown"
	}
}

// Event reports one threshold change
type Event struct {
	Kind  EventKind
	Depth int   // node depth when the change happened
	Cycle int64 // move number, starting at 1
	Old   int64
	New   int64
}

type options struct {
	tracer func(Event)
}

// Option configures a Decode call
type Option func(*options)

// WithTracer calls fn synchronously for every threshold change
func WithTracer(fn func(Event)) Option {
	return func(o *options) {
		o.tracer = fn
	}
}
