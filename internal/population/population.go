// Package population owns the live set of typed agents (spec.md §4.3):
// each a DNA record paired with an immutable role tag, a prompt template,
// and a role-specific response parser.
package population

import (
	"fmt"
	"sync"

	"github.com/evoforge/evoforge/internal/dna"
)

// Role is one of the four fixed agent roles. Immutable after construction.
type Role string

const (
	RoleIdeator     Role = "ideator"
	RoleSimulator   Role = "simulator"
	RoleCritic      Role = "critic"
	RoleSynthesizer Role = "synthesizer"
)

// Agent is DNA + an immutable role tag (spec §3).
type Agent struct {
	DNA  *dna.DNA
	Role Role
}

// Snapshot is a safe, lock-free copy of an Agent for readers (control-plane
// status, coordinator fan-out), matching the copy-on-read discipline spec.md
// §5 requires of the population's shared state.
type Snapshot struct {
	ID         string
	Name       string
	Role       Role
	Traits     dna.Traits
	Model      string
	Generation int
	ParentIDs  []string
}

func (a *Agent) snapshot() Snapshot {
	return Snapshot{
		ID:         a.DNA.ID,
		Name:       a.DNA.Name,
		Role:       a.Role,
		Traits:     a.DNA.Traits,
		Model:      a.DNA.Model,
		Generation: a.DNA.Generation,
		ParentIDs:  append([]string{}, a.DNA.ParentIDs...),
	}
}

// Population is the single-writer, multi-reader live set of agents for one
// run (spec §5). The orchestrator's spawn and Breed register new DNA in the
// lineage tracker first, then add it here, and publish AgentSpawned last.
// The three steps are not one atomic commit: a reader of the lineage can
// see an agent that is not yet in the population.
type Population struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// New builds an empty Population.
func New() *Population {
	return &Population{agents: make(map[string]*Agent)}
}

// Add registers a new live agent. Returns an error if the id is already
// present (spawn should never collide given uuid identity).
func (p *Population) Add(a *Agent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.agents[a.DNA.ID]; exists {
		return fmt.Errorf("population: agent already present: %s", a.DNA.ID)
	}
	p.agents[a.DNA.ID] = a
	return nil
}

// Get returns the agent, or false if absent.
func (p *Population) Get(id string) (*Agent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.agents[id]
	return a, ok
}

// Size returns the current population size.
func (p *Population) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.agents)
}

// ByRole returns a snapshot list of every live agent with the given role.
func (p *Population) ByRole(role Role) []*Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []*Agent
	for _, a := range p.agents {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out
}

// Snapshot returns a copy-on-read view of every live agent, safe to hand to
// control-plane readers without holding the population lock.
func (p *Population) Snapshot() []Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Snapshot, 0, len(p.agents))
	for _, a := range p.agents {
		out = append(out, a.snapshot())
	}
	return out
}

// AverageTraits computes the current average trait vector across all live
// agents, used by the spawn-specialist rule in spec §4.6.
func (p *Population) AverageTraits() dna.Traits {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.agents) == 0 {
		return dna.DefaultTraits()
	}
	var sum dna.Traits
	for _, a := range p.agents {
		sum.Creativity += a.DNA.Traits.Creativity
		sum.Precision += a.DNA.Traits.Precision
		sum.Speed += a.DNA.Traits.Speed
		sum.Collaboration += a.DNA.Traits.Collaboration
	}
	n := float64(len(p.agents))
	return dna.Traits{
		Creativity:    sum.Creativity / n,
		Precision:     sum.Precision / n,
		Speed:         sum.Speed / n,
		Collaboration: sum.Collaboration / n,
	}.Clamp()
}

// AllTraits returns every live agent's trait vector, e.g. for
// dna.Diversity(population.AllTraits()).
func (p *Population) AllTraits() []dna.Traits {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]dna.Traits, 0, len(p.agents))
	for _, a := range p.agents {
		out = append(out, a.DNA.Traits)
	}
	return out
}
