// Package cascade implements the hierarchical cascading selection engine: a
// chain of dependent selections whose changes reset every level below them,
// drive generation-tagged lookups keyed by the current selections, and derive
// a flat submission view from selections plus accepted lookup results.
//
// A Session owns all mutable state for one form. Mutations and fetch
// resolutions are serialized under the session lock, so callers observe one
// consistent state per step.
package cascade

import "errors"

// Sentinel errors. Use errors.Is to check.
var (
	ErrInvalidGraph    = errors.New("cascade: invalid dependency graph")
	ErrUnknownLevel    = errors.New("cascade: unknown level")
	ErrUnknownExtra    = errors.New("cascade: unknown extra key")
	ErrUnmetDependency = errors.New("cascade: ancestor level not selected")
	ErrMissingIdentity = errors.New("cascade: session identity is required")
	ErrSessionClosed   = errors.New("cascade: session closed")
)

// Outcome reports what a selection call did.
type Outcome int

const (
	// OutcomeChanged means state was committed and dependents were reset.
	OutcomeChanged Outcome = iota
	// OutcomeUnchanged means the resolved value equals the current one.
	OutcomeUnchanged
	// OutcomeMiss means the label did not resolve; nothing changed.
	OutcomeMiss
)

func (o Outcome) String() string {
	switch o {
	case OutcomeChanged:
		return "changed"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeMiss:
		return "miss"
	default:
		return "unknown"
	}
}
