package evolution

import (
	"context"
	"sync"
	"time"

	"github.com/evoforge/evoforge/internal/domain"
	"github.com/evoforge/evoforge/internal/eventbus"
	"github.com/evoforge/evoforge/internal/lineage"
	"github.com/evoforge/evoforge/internal/population"
)

// Status is a run's terminal or in-flight state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Run holds one mandate's full execution state: its population, lineage,
// event bus, and rolling consensus history. One Orchestrator.Execute
// goroutine drives a Run's iteration state; the control plane reads it
// through the snapshot methods below and otherwise only calls Cancel or
// Orchestrator.Breed, which takes the run's lock for its SpawnLog entry.
type Run struct {
	mu sync.RWMutex

	ID       string
	Mandate  domain.Mandate
	Pop      *population.Population
	Lineage  *lineage.Tracker
	Bus      *eventbus.Bus
	SpawnLog []SpawnEvent

	iteration        int
	consensusHistory []float64
	status           Status
	reason           string
	errMsg           string
	startedAt        time.Time
	finishedAt       time.Time

	cancel context.CancelFunc
}

// SpawnEvent records one specialist-spawn or breed-spawn decision, for the
// control plane's run-status view.
type SpawnEvent struct {
	Iteration int             `json:"iteration"`
	AgentID   string          `json:"agentId"`
	Role      population.Role `json:"role"`
	Reasoning string          `json:"reasoning"`
}

// Status returns the run's current lifecycle status.
func (r *Run) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Snapshot is the control-plane-facing read view of a run (spec §6's
// "run status snapshot").
type Snapshot struct {
	ID               string        `json:"id"`
	Status           Status        `json:"status"`
	Reason           string        `json:"reason,omitempty"`
	Error            string        `json:"error,omitempty"`
	Iteration        int           `json:"iteration"`
	ConsensusHistory []float64     `json:"consensusHistory"`
	PopulationSize   int           `json:"populationSize"`
	StartedAt        time.Time     `json:"startedAt"`
	FinishedAt       time.Time     `json:"finishedAt,omitzero"`
	Elapsed          time.Duration `json:"elapsedNanos"`
}

// Snapshot returns a copy-on-read view safe to hand to an HTTP handler
// without holding any lock afterward.
func (r *Run) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	elapsed := time.Since(r.startedAt)
	if !r.finishedAt.IsZero() {
		elapsed = r.finishedAt.Sub(r.startedAt)
	}
	return Snapshot{
		ID:               r.ID,
		Status:           r.status,
		Reason:           r.reason,
		Error:            r.errMsg,
		Iteration:        r.iteration,
		ConsensusHistory: append([]float64{}, r.consensusHistory...),
		PopulationSize:   r.Pop.Size(),
		StartedAt:        r.startedAt,
		FinishedAt:       r.finishedAt,
		Elapsed:          elapsed,
	}
}

// SpawnLogSnapshot returns a copy of the run's spawn log, safe to read
// without holding the run's lock.
func (r *Run) SpawnLogSnapshot() []SpawnEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]SpawnEvent{}, r.SpawnLog...)
}

// Cancel requests cooperative cancellation of a running run.
func (r *Run) Cancel() {
	r.mu.RLock()
	cancel := r.cancel
	r.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}
