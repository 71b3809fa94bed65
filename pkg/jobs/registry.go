// Package jobs is the job runtime: a registry of job kinds, a pool of
// worker slots, and the Queued/Running/Paused/Completed/Failed/Canceled
// state machine persisted to the catalog at every step boundary.
package jobs

import "encoding/json"

// Kind identifies a registered job type. Job kinds are a tagged-variant
// enum, not a trait-object hierarchy: each Kind maps to exactly one
// Definition, and dispatch is a single map lookup.
type Kind string

// State is the serializable working state threaded through a job's
// lifecycle. Init is fixed at submission time; Data and Steps are produced
// by Init and consumed by ExecuteStep/Finalize. All three are opaque JSON
// to the runtime, typed only inside a Definition's own functions.
type State struct {
	Init  json.RawMessage
	Data  json.RawMessage
	Steps []json.RawMessage
}

// Definition registers one job kind's lifecycle functions.
type Definition struct {
	Kind Kind

	// Init prepares state.Data and state.Steps from state.Init. A
	// non-nil error here fails the job without persisting steps
	// (InputValidation class errors belong here).
	Init func(ctx *Context, state *State) error

	// ExecuteStep processes state.Steps[0]. The runtime pops the step
	// after a nil return. Transient errors are retried per
	// retryable.Backoff; on any other error, or once retries are spent, the
	// step is not popped.
	ExecuteStep func(ctx *Context, state *State) error

	// Finalize runs once after Steps is drained and returns the result
	// payload persisted to JobRecord.Data.
	Finalize func(ctx *Context, state *State) (json.RawMessage, error)
}

// Registry maps Kind to Definition.
type Registry struct {
	defs map[Kind]Definition
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[Kind]Definition)}
}

// Register adds or replaces the Definition for d.Kind.
func (r *Registry) Register(d Definition) {
	r.defs[d.Kind] = d
}

// Lookup returns the Definition for kind, if registered.
func (r *Registry) Lookup(kind Kind) (Definition, bool) {
	d, ok := r.defs[kind]
	return d, ok
}
