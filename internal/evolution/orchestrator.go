// Package evolution implements the Evolution Orchestrator of spec.md §4.6:
// the iteration loop that drives a mandate through ideate → simulate →
// critique → synthesize, checks convergence, and spawns new agents.
package evolution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/evoforge/evoforge/internal/dna"
	"github.com/evoforge/evoforge/internal/domain"
	"github.com/evoforge/evoforge/internal/eventbus"
	"github.com/evoforge/evoforge/internal/lineage"
	"github.com/evoforge/evoforge/internal/population"
	"github.com/evoforge/evoforge/internal/swarm"
	"github.com/google/uuid"
)

const (
	defaultBreakthroughThreshold = 0.85
	defaultPhaseDeadline         = 5 * time.Minute
	defaultIdeasPerAgent         = 2
	maxSpawnsPerIteration        = 2
)

// Config tunes an Orchestrator away from spec defaults (used by
// internal/config wiring; zero values fall back to spec defaults).
type Config struct {
	BreakthroughThreshold float64
	PhaseDeadline         time.Duration
	IdeasPerAgent         int

	// IdeatorModel, SimulatorModel, CriticModel, and SynthesisModel name the
	// router-routable model id ("provider/model") seeded agents of each role
	// are born with. Empty fields fall back to "default", which only a stub
	// or test Backend will resolve.
	IdeatorModel   string
	SimulatorModel string
	CriticModel    string
	SynthesisModel string
}

// Orchestrator drives runs through the §4.6 iteration loop. Stateless
// between runs: all mutable state lives on the Run it is given.
type Orchestrator struct {
	coordinator           *swarm.Coordinator
	logger                *slog.Logger
	breakthroughThreshold float64
	phaseDeadline         time.Duration
	ideasPerAgent         int
	roleModels            map[population.Role]string
}

// New builds an Orchestrator over a Swarm Coordinator.
func New(coordinator *swarm.Coordinator, logger *slog.Logger, cfg Config) *Orchestrator {
	o := &Orchestrator{
		coordinator:           coordinator,
		logger:                logger.With("component", "evolution"),
		breakthroughThreshold: cfg.BreakthroughThreshold,
		phaseDeadline:         cfg.PhaseDeadline,
		ideasPerAgent:         cfg.IdeasPerAgent,
		roleModels: map[population.Role]string{
			population.RoleIdeator:     nonEmpty(cfg.IdeatorModel, "default"),
			population.RoleSimulator:   nonEmpty(cfg.SimulatorModel, "default"),
			population.RoleCritic:      nonEmpty(cfg.CriticModel, "default"),
			population.RoleSynthesizer: nonEmpty(cfg.SynthesisModel, "default"),
		},
	}
	if o.breakthroughThreshold == 0 {
		o.breakthroughThreshold = defaultBreakthroughThreshold
	}
	if o.phaseDeadline == 0 {
		o.phaseDeadline = defaultPhaseDeadline
	}
	if o.ideasPerAgent == 0 {
		o.ideasPerAgent = defaultIdeasPerAgent
	}
	return o
}

func nonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// NewRun constructs a fresh Run seeded with one agent of each role (spec
// §4.6: "initialize population with 1 ideator, 1 simulator, 1 critic, 1
// synthesizer"), all registered as lineage roots.
func (o *Orchestrator) NewRun(mandate domain.Mandate) *Run {
	pop := population.New()
	tracker := lineage.New(o.logger)
	bus := eventbus.New(o.logger, eventbus.WithRetain(256))

	seed := []struct {
		role population.Role
		name string
		caps []dna.Capability
	}{
		{population.RoleIdeator, "ideator-seed", []dna.Capability{dna.CapabilityIdeation}},
		{population.RoleSimulator, "simulator-seed", []dna.Capability{dna.CapabilitySimulation}},
		{population.RoleCritic, "critic-seed", []dna.Capability{dna.CapabilityCritique}},
		{population.RoleSynthesizer, "synthesizer-seed", []dna.Capability{dna.CapabilitySynthesis}},
	}
	for _, s := range seed {
		d := dna.NewRoot(s.name, o.defaultModelForRole(s.role), defaultInstructionForRole(s.role), dna.DefaultTraits(), s.caps)
		pop.Add(&population.Agent{DNA: d, Role: s.role})
		tracker.Register(d)
	}

	return &Run{
		ID:      uuid.NewString(),
		Mandate: mandate,
		Pop:     pop,
		Lineage: tracker,
		Bus:     bus,
		status:  StatusRunning,
	}
}

func (o *Orchestrator) defaultModelForRole(role population.Role) string {
	if m, ok := o.roleModels[role]; ok {
		return m
	}
	return "default"
}

func defaultInstructionForRole(role population.Role) string {
	switch role {
	case population.RoleIdeator:
		return "Generate novel, concrete ideas addressing the mandate."
	case population.RoleSimulator:
		return "Assess the practical viability of a proposed idea."
	case population.RoleCritic:
		return "Find flaws, strengths, and hidden biases in a proposal."
	case population.RoleSynthesizer:
		return "Synthesize the iteration's ideas, simulations, and critiques into a consensus."
	default:
		return ""
	}
}

// Execute runs the §4.6 loop to completion, publishing events as it goes.
// It returns only after the run reaches a terminal status; the caller is
// expected to have launched this in its own goroutine for runs started via
// the control plane.
func (o *Orchestrator) Execute(ctx context.Context, run *Run) {
	ctx, cancel := context.WithCancel(ctx)
	run.mu.Lock()
	run.cancel = cancel
	run.startedAt = time.Now()
	run.mu.Unlock()
	defer cancel()

	run.Bus.Publish(eventbus.KindConnected, nil)
	run.Bus.Publish(eventbus.KindRunStarted, map[string]any{"runId": run.ID, "mandate": run.Mandate.Title})

	maxIterations := run.Mandate.MaxIterations
	maxAgents := run.Mandate.MaxAgents
	if maxAgents <= 0 {
		maxAgents = 5
	}

	consecutiveFailedPhases := 0

	for i := 1; i <= maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			o.finish(run, StatusCancelled, "cancelled", "")
			return
		}

		run.mu.Lock()
		run.iteration = i
		run.mu.Unlock()
		run.Bus.Publish(eventbus.KindIterationStarted, map[string]any{"iteration": i})

		phaseCtx, phaseCancel := context.WithTimeout(ctx, o.phaseDeadline)
		ideas := o.coordinator.Ideate(phaseCtx, run.Pop, run.Mandate, o.ideasPerAgent)
		phaseCancel()
		run.Bus.Publish(eventbus.KindPhaseDone, map[string]any{"phase": "ideation", "count": len(ideas)})
		// Simulation and critique operate on whatever ideation produced, so an
		// empty ideation phase cascades into empty downstream phases; tracking
		// consecutive ideation failures is equivalent to tracking consecutive
		// whole-iteration failures for the "every worker failed" case in §7.
		if len(ideas) == 0 {
			consecutiveFailedPhases++
		} else {
			consecutiveFailedPhases = 0
		}
		if consecutiveFailedPhases >= 2 {
			o.finish(run, StatusFailed, "", "two consecutive phases produced no results")
			return
		}

		phaseCtx, phaseCancel = context.WithTimeout(ctx, o.phaseDeadline)
		sims := o.coordinator.Simulate(phaseCtx, run.Pop, ideas)
		phaseCancel()
		run.Bus.Publish(eventbus.KindPhaseDone, map[string]any{"phase": "simulation", "count": len(sims)})

		phaseCtx, phaseCancel = context.WithTimeout(ctx, o.phaseDeadline)
		crits := o.coordinator.Critique(phaseCtx, run.Pop, ideas, sims)
		phaseCancel()
		run.Bus.Publish(eventbus.KindPhaseDone, map[string]any{"phase": "critique", "count": len(crits)})

		phaseCtx, phaseCancel = context.WithTimeout(ctx, o.phaseDeadline)
		synth := o.coordinator.Synthesize(phaseCtx, run.Pop, ideas, sims, crits)
		phaseCancel()
		run.Bus.Publish(eventbus.KindPhaseDone, map[string]any{"phase": "synthesis", "count": 1})
		run.Bus.Publish(eventbus.KindConsensusUpdate, map[string]any{"value": synth.Consensus})

		run.mu.Lock()
		run.consensusHistory = append(run.consensusHistory, synth.Consensus)
		history := append([]float64{}, run.consensusHistory...)
		run.mu.Unlock()

		if converged(history, synth.Consensus, o.breakthroughThreshold) {
			if synth.Consensus >= o.breakthroughThreshold {
				o.finish(run, StatusCompleted, "breakthrough", "")
			} else {
				o.finish(run, StatusCompleted, "convergence", "")
			}
			return
		}

		if synth.ReadyToSpawn && synth.SpawnRec != nil {
			o.spawn(run, i, synth.SpawnRec, maxAgents)
		}

		if run.Pop.Size() >= maxAgents {
			o.finish(run, StatusCompleted, "agent_cap", "")
			return
		}
	}

	o.finish(run, StatusCompleted, "max_iterations", "")
}

// converged implements spec §4.6's predicate: breakthrough fires whenever
// the current consensus meets the threshold; stability requires at least 3
// recorded values whose last-3 standard deviation is under 0.01 and which
// are not improving (last <= first of the window).
func converged(history []float64, current, breakthroughThreshold float64) bool {
	if current >= breakthroughThreshold {
		return true
	}
	if len(history) < 3 {
		return false
	}
	last3 := history[len(history)-3:]
	mean := (last3[0] + last3[1] + last3[2]) / 3
	variance := (sq(last3[0]-mean) + sq(last3[1]-mean) + sq(last3[2]-mean)) / 3
	stdev := math.Sqrt(variance)
	notImproving := last3[2] <= last3[0]
	return stdev < 0.01 && notImproving
}

func sq(v float64) float64 { return v * v }

// roleForCapability maps a requested capability to the typed-agent role a
// specialist with that capability should be instantiated as. optimization
// and research have no dedicated role in spec §3's four-role taxonomy, so
// they are routed to the role whose phase they most directly feed:
// optimization feeds simulation (it refines viability estimates), research
// feeds ideation (it widens the idea space).
func roleForCapability(cap dna.Capability) population.Role {
	switch cap {
	case dna.CapabilityIdeation, dna.CapabilityResearch:
		return population.RoleIdeator
	case dna.CapabilitySimulation, dna.CapabilityOptimization:
		return population.RoleSimulator
	case dna.CapabilityCritique:
		return population.RoleCritic
	case dna.CapabilitySynthesis:
		return population.RoleSynthesizer
	default:
		return population.RoleIdeator
	}
}

// spawn implements spec §4.6's specialist-spawn path: for each requested
// capability (in order), build a specialist DNA nudged off the population's
// current average trait vector, register it in the lineage as a root, and
// add it to the population — capped at 2 new agents per iteration and never
// exceeding maxAgents.
func (o *Orchestrator) spawn(run *Run, iteration int, rec *domain.SpawnRecommendation, maxAgents int) {
	avg := run.Pop.AverageTraits()
	spawned := 0

	for _, capName := range rec.RequiredCapabilities {
		if spawned >= maxSpawnsPerIteration {
			break
		}
		if run.Pop.Size() >= maxAgents {
			run.Bus.Publish(eventbus.KindAgentSpawned, map[string]any{
				"skipped": true, "reason": "capacity exceeded", "capability": capName,
			})
			break
		}

		cap := dna.Capability(capName)
		role := roleForCapability(cap)
		isCritique := role == population.RoleCritic
		name := fmt.Sprintf("specialist-%s-i%d", capName, iteration)
		d := dna.Specialize(name, o.defaultModelForRole(role), defaultInstructionForRole(role), avg, []dna.Capability{cap}, isCritique)

		if err := run.Lineage.Register(d); err != nil {
			o.logger.Warn("spawn: lineage registration failed", "agent", d.ID, "error", err)
			continue
		}
		if err := run.Pop.Add(&population.Agent{DNA: d, Role: role}); err != nil {
			o.logger.Warn("spawn: population add failed", "agent", d.ID, "error", err)
			continue
		}

		run.mu.Lock()
		run.SpawnLog = append(run.SpawnLog, SpawnEvent{Iteration: iteration, AgentID: d.ID, Role: role, Reasoning: rec.Reasoning})
		run.mu.Unlock()

		run.Bus.Publish(eventbus.KindAgentSpawned, map[string]any{
			"id": d.ID, "role": string(role), "generation": d.Generation,
		})
		spawned++
	}
}

// Breed implements spec §4.6's alternative spawning path: breeding two
// live, genetically distant (distance > 0.3) agents into a generation-N
// hybrid. The caller chooses the parents; Breed checks their distance and
// the agent cap but does not evaluate fitness. Unlike the specialist path this is never called by
// Execute's main loop; it is reachable only through the control plane for
// advanced operators (spec §4.6, last paragraph).
func (o *Orchestrator) Breed(run *Run, parent1ID, parent2ID string, role population.Role) (*dna.DNA, error) {
	p1, ok := run.Pop.Get(parent1ID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown parent %s", ErrControlPlaneError, parent1ID)
	}
	p2, ok := run.Pop.Get(parent2ID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown parent %s", ErrControlPlaneError, parent2ID)
	}

	distance := dna.GeneticDistance(p1.DNA.Traits, p2.DNA.Traits)
	if distance <= 0.3 {
		return nil, fmt.Errorf("%w: parents are not genetically distant enough (distance=%.2f)", ErrControlPlaneError, distance)
	}

	maxAgents := run.Mandate.MaxAgents
	if maxAgents <= 0 {
		maxAgents = 5
	}
	if run.Pop.Size() >= maxAgents {
		return nil, ErrCapacityExceeded
	}

	child := dna.Breed(p1.DNA, p2.DNA, 0.1)
	if err := run.Lineage.Register(child); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvariantViolation, err.Error())
	}
	if err := run.Pop.Add(&population.Agent{DNA: child, Role: role}); err != nil {
		return nil, err
	}

	run.mu.Lock()
	run.SpawnLog = append(run.SpawnLog, SpawnEvent{
		Iteration: run.iteration, AgentID: child.ID, Role: role,
		Reasoning: fmt.Sprintf("bred from %s and %s", parent1ID, parent2ID),
	})
	run.mu.Unlock()

	run.Bus.Publish(eventbus.KindAgentSpawned, map[string]any{
		"id": child.ID, "role": string(role), "generation": child.Generation, "bred": true,
	})
	return child, nil
}

func (o *Orchestrator) finish(run *Run, status Status, reason, errMsg string) {
	run.mu.Lock()
	run.status = status
	run.reason = reason
	run.errMsg = errMsg
	run.finishedAt = time.Now()
	snapshot := Snapshot{
		Iteration:        run.iteration,
		ConsensusHistory: append([]float64{}, run.consensusHistory...),
		PopulationSize:   run.Pop.Size(),
	}
	run.mu.Unlock()

	if status == StatusFailed {
		run.Bus.Publish(eventbus.KindRunFailed, map[string]any{"error": errMsg})
	} else {
		run.Bus.Publish(eventbus.KindRunCompleted, map[string]any{
			"reason": reason,
			"stats": map[string]any{
				"iterations":     snapshot.Iteration,
				"populationSize": snapshot.PopulationSize,
				"consensus":      snapshot.ConsensusHistory,
			},
		})
	}
}
