// Package swarm implements the Swarm Coordinator of spec.md §4.5: bounded
// fan-out/fan-in across a phase's workers, using a pre-indexed result slice
// and an errgroup instead of a mutex-guarded accumulator (the same pattern
// the upstream chat orchestrator used for parallel tool execution).
package swarm

import (
	"context"
	"log/slog"

	"github.com/evoforge/evoforge/internal/domain"
	"github.com/evoforge/evoforge/internal/oracle"
	"github.com/evoforge/evoforge/internal/population"
	"golang.org/x/sync/errgroup"
)

// Coordinator fans mandate/idea/simulation/critique work out across a
// population's role groups and fans results back in, respecting caller
// cancellation and returning whatever partial results completed before a
// cancellation (spec §4.5, §8).
type Coordinator struct {
	oc     *oracle.Client
	logger *slog.Logger
}

// New builds a Coordinator over an Oracle Client.
func New(oc *oracle.Client, logger *slog.Logger) *Coordinator {
	return &Coordinator{oc: oc, logger: logger.With("component", "swarm")}
}

// Ideate runs every ideator in the population concurrently, each asked for
// ideasPerAgent ideas, and flattens the results. A caller-supplied deadline
// or cancellation on ctx stops outstanding calls; ideas already produced by
// completed ideators are still returned (spec §4.5: "a cancelled phase
// returns whatever partial results it already has").
func (c *Coordinator) Ideate(ctx context.Context, pop *population.Population, mandate domain.Mandate, ideasPerAgent int) []domain.Idea {
	ideators := pop.ByRole(population.RoleIdeator)
	results := make([][]domain.Idea, len(ideators))

	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range ideators {
		i, agent := i, agent
		g.Go(func() error {
			ideas, err := population.RunIdeator(gctx, agent, c.oc, mandate, ideasPerAgent)
			if err != nil {
				c.logger.Warn("ideator failed unexpectedly", "agent", agent.DNA.ID, "error", err)
				return nil
			}
			results[i] = ideas
			return nil
		})
	}
	_ = g.Wait()

	var out []domain.Idea
	for _, ideas := range results {
		out = append(out, ideas...)
	}
	return out
}

// chunk splits items into at most n contiguous slices of ceil(|items|/n)
// items each, the last possibly shorter (
// spec §4.5: "chunked ceil(|items|/|workers|), sequential within a worker").
func chunk[T any](items []T, n int) [][]T {
	if n <= 0 || len(items) == 0 {
		return nil
	}
	size := (len(items) + n - 1) / n
	var chunks [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}

// Simulate fans ideas out across the population's simulators in chunks
// (ceil(|ideas|/|simulators|) per worker, sequential within a worker,
// parallel across workers) and fans the simulations back in.
func (c *Coordinator) Simulate(ctx context.Context, pop *population.Population, ideas []domain.Idea) []domain.Simulation {
	simulators := pop.ByRole(population.RoleSimulator)
	if len(simulators) == 0 || len(ideas) == 0 {
		return nil
	}
	chunks := chunk(ideas, len(simulators))
	results := make([][]domain.Simulation, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range chunks {
		i, batch, agent := i, batch, simulators[i%len(simulators)]
		g.Go(func() error {
			out := make([]domain.Simulation, 0, len(batch))
			for _, idea := range batch {
				if err := gctx.Err(); err != nil {
					break
				}
				out = append(out, population.RunSimulator(gctx, agent, c.oc, idea))
			}
			results[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var out []domain.Simulation
	for _, batch := range results {
		out = append(out, batch...)
	}
	return out
}

// critiqueTarget is an (id, rendered description) pair a critic can review;
// it may describe either an Idea or a Simulation.
type critiqueTarget struct {
	id          string
	description string
}

// Critique fans ideas and simulations out across the population's critics
// in the same chunked fashion as Simulate.
func (c *Coordinator) Critique(ctx context.Context, pop *population.Population, ideas []domain.Idea, sims []domain.Simulation) []domain.Critique {
	critics := pop.ByRole(population.RoleCritic)
	if len(critics) == 0 {
		return nil
	}

	targets := make([]critiqueTarget, 0, len(ideas)+len(sims))
	for _, idea := range ideas {
		targets = append(targets, critiqueTarget{id: idea.ID, description: "idea: " + idea.Title + " - " + idea.Description})
	}
	for _, sim := range sims {
		targets = append(targets, critiqueTarget{id: sim.IdeaID, description: "simulation viability result for idea"})
	}
	if len(targets) == 0 {
		return nil
	}

	chunks := chunk(targets, len(critics))
	results := make([][]domain.Critique, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range chunks {
		i, batch, agent := i, batch, critics[i%len(critics)]
		g.Go(func() error {
			out := make([]domain.Critique, 0, len(batch))
			for _, t := range batch {
				if err := gctx.Err(); err != nil {
					break
				}
				out = append(out, population.RunCritic(gctx, agent, c.oc, t.id, t.description))
			}
			results[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var out []domain.Critique
	for _, batch := range results {
		out = append(out, batch...)
	}
	return out
}

// Synthesize runs the population's single synthesizer (spec §4.5: synthesis
// is never parallelized) over the iteration's full tri-list. If more than one
// synthesizer exists the first by population iteration order is used; if
// none exists, a zero-value Synthesis with readyToSpawn=false is returned.
func (c *Coordinator) Synthesize(ctx context.Context, pop *population.Population, ideas []domain.Idea, sims []domain.Simulation, crits []domain.Critique) domain.Synthesis {
	synthesizers := pop.ByRole(population.RoleSynthesizer)
	if len(synthesizers) == 0 {
		return domain.Synthesis{ReadyToSpawn: false}
	}
	return population.RunSynthesizer(ctx, synthesizers[0], c.oc, ideas, sims, crits)
}
