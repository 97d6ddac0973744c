package script

import "context"

// Engine abstracts an embeddable interpreter with coroutine-style
// suspend/resume. The runner depends on this interface instead of a concrete
// interpreter.
type Engine interface {
	// Load compiles and runs source in a fresh interpreter instance. The
	// returned Program is bound to ctx: once ctx is done, running code fails.
	Load(ctx context.Context, source string) (Program, error)
}

// Program is one loaded script. It is not safe for concurrent use.
type Program interface {
	// Start prepares the global function named entry as a resumable
	// computation. Nothing runs until the first Resume.
	Start(entry string) (Coroutine, error)

	// Close releases the interpreter.
	Close()
}

// Coroutine is a suspended computation. Values crossing it are JSON-shaped:
// nil, bool, float64, int64, string, []any and map[string]any.
type Coroutine interface {
	// Resume runs the computation until it yields or finishes. The first call
	// passes the entry argument; later calls pass the answer to the value the
	// computation last yielded.
	Resume(value any) (Step, error)
}

// Step is where a computation stopped: suspended with a yielded value, or
// finished (Done) with its return value.
type Step struct {
	Value any
	Done  bool
}
