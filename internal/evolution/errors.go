package evolution

import "errors"

// Error taxonomy of spec.md §7. OracleError and ParserError are not
// separate Go types here: a failed oracle call is already converted into a
// safe fallback artifact or an empty ideator list inside
// internal/population's role functions, so by the time the orchestrator
// sees a phase result, exhaustion has already been subsumed — exactly as
// §7 describes ParserError being "subsumed into OracleError after §4.1
// retry exhausts."
var (
	// ErrInvariantViolation marks a programmer error (e.g. registering a
	// lineage node whose parent is unknown) that should abort the run
	// rather than be retried.
	ErrInvariantViolation = errors.New("evolution: invariant violation")

	// ErrCapacityExceeded marks a spawn attempted beyond maxAgents; recovered
	// locally by the caller (spawn skipped, warning event emitted), never
	// propagated as a run failure on its own.
	ErrCapacityExceeded = errors.New("evolution: capacity exceeded")

	// ErrCancelled marks a caller-driven cancellation, propagated cleanly
	// with no RunFailed event unless the cancellation was itself caused by
	// a prior failure.
	ErrCancelled = errors.New("evolution: run cancelled")

	// ErrControlPlaneError marks malformed input or an unknown run id; the
	// control plane surfaces this as a 4xx response without any run state
	// change.
	ErrControlPlaneError = errors.New("evolution: control plane error")

	// ErrTwoPhasesFailed marks two consecutive failed phases (every worker
	// in both phases failed), which aborts the run with RunFailed.
	ErrTwoPhasesFailed = errors.New("evolution: two consecutive phases failed")
)
