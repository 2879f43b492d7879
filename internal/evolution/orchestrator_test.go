package evolution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/evoforge/evoforge/internal/domain"
	"github.com/evoforge/evoforge/internal/interfaces"
	"github.com/evoforge/evoforge/internal/oracle"
	"github.com/evoforge/evoforge/internal/swarm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedBackend cycles through canned chat responses regardless of which
// role prompt asked for them; tests steer behavior by content, not routing.
type scriptedBackend struct {
	ideaResp  string
	simResp   string
	critResp  string
	synthResp []string // one per call, in order; last value repeats after exhaustion
	synthI    int
}

func (b *scriptedBackend) Chat(ctx context.Context, req interfaces.ChatRequest) (*interfaces.ChatResponse, error) {
	prompt := req.Messages[0].Content
	switch {
	case containsAny(prompt, "ideation agent"):
		return &interfaces.ChatResponse{Content: b.ideaResp}, nil
	case containsAny(prompt, "simulation agent"):
		return &interfaces.ChatResponse{Content: b.simResp}, nil
	case containsAny(prompt, "critique agent"):
		return &interfaces.ChatResponse{Content: b.critResp}, nil
	case containsAny(prompt, "synthesis agent"):
		idx := b.synthI
		if idx >= len(b.synthResp) {
			idx = len(b.synthResp) - 1
		}
		b.synthI++
		return &interfaces.ChatResponse{Content: b.synthResp[idx]}, nil
	}
	return nil, errors.New("unrecognized prompt")
}

func containsAny(s, sub string) bool {
	return len(s) >= len(sub) && indexOf(s, sub) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func newOrchestrator(backend oracle.Backend) *Orchestrator {
	oc := oracle.New(backend, testLogger())
	coord := swarm.New(oc, testLogger())
	return New(coord, testLogger(), Config{})
}

func TestSmokeRunMaxIterations(t *testing.T) {
	backend := &scriptedBackend{
		ideaResp: `[{"title":"A","description":"d","approach":"a","novelty":0.5}]`,
		simResp:  `{"viability":0.5,"metrics":{},"risks":["r"],"recommendations":["x"]}`,
		critResp: `{"assessment":"approve","confidence":0.9}`,
		synthResp: []string{
			`{"topIdeaIds":["x"],"combinedApproach":"c","consensus":0.5,"readyToSpawn":false}`,
		},
	}
	o := newOrchestrator(backend)
	mandate := domain.Mandate{Title: "T", MaxIterations: 1, MaxAgents: 5}
	run := o.NewRun(mandate)

	var events []string
	sub := run.Bus.Subscribe(0)
	done := make(chan struct{})
	go func() {
		for ev := range sub.Events() {
			events = append(events, string(ev.Kind))
		}
		close(done)
	}()

	o.Execute(context.Background(), run)
	sub.Unsubscribe()
	<-done

	snap := run.Snapshot()
	if snap.Reason != "max_iterations" {
		t.Fatalf("reason = %q, want max_iterations", snap.Reason)
	}
	if len(events) < 5 {
		t.Fatalf("expected at least 5 events, got %d: %v", len(events), events)
	}
}

func TestBreakthroughTerminatesEarly(t *testing.T) {
	backend := &scriptedBackend{
		ideaResp: `[{"title":"A","description":"d","approach":"a","novelty":0.5}]`,
		simResp:  `{"viability":0.5,"metrics":{},"risks":["r"],"recommendations":["x"]}`,
		critResp: `{"assessment":"approve","confidence":0.9}`,
		synthResp: []string{
			`{"topIdeaIds":["x"],"combinedApproach":"c","consensus":0.9,"readyToSpawn":false}`,
		},
	}
	o := newOrchestrator(backend)
	mandate := domain.Mandate{Title: "T", MaxIterations: 5, MaxAgents: 10}
	run := o.NewRun(mandate)

	o.Execute(context.Background(), run)
	snap := run.Snapshot()
	if snap.Reason != "breakthrough" {
		t.Fatalf("reason = %q, want breakthrough", snap.Reason)
	}
	if snap.Iteration != 1 {
		t.Fatalf("iteration = %d, want 1", snap.Iteration)
	}
}

func TestStabilityConvergesAfterThreeIterations(t *testing.T) {
	backend := &scriptedBackend{
		ideaResp: `[{"title":"A","description":"d","approach":"a","novelty":0.5}]`,
		simResp:  `{"viability":0.5,"metrics":{},"risks":["r"],"recommendations":["x"]}`,
		critResp: `{"assessment":"approve","confidence":0.9}`,
		synthResp: []string{
			`{"topIdeaIds":["x"],"combinedApproach":"c","consensus":0.70,"readyToSpawn":false}`,
			`{"topIdeaIds":["x"],"combinedApproach":"c","consensus":0.70,"readyToSpawn":false}`,
			`{"topIdeaIds":["x"],"combinedApproach":"c","consensus":0.70,"readyToSpawn":false}`,
		},
	}
	o := newOrchestrator(backend)
	mandate := domain.Mandate{Title: "T", MaxIterations: 5, MaxAgents: 10}
	run := o.NewRun(mandate)

	o.Execute(context.Background(), run)
	snap := run.Snapshot()
	if snap.Reason != "convergence" {
		t.Fatalf("reason = %q, want convergence", snap.Reason)
	}
	if snap.Iteration != 3 {
		t.Fatalf("iteration = %d, want 3", snap.Iteration)
	}
}

func TestAgentCapRefusesSpawnAndTerminates(t *testing.T) {
	backend := &scriptedBackend{
		ideaResp: `[{"title":"A","description":"d","approach":"a","novelty":0.5}]`,
		simResp:  `{"viability":0.5,"metrics":{},"risks":["r"],"recommendations":["x"]}`,
		critResp: `{"assessment":"approve","confidence":0.9}`,
		synthResp: []string{
			`{"topIdeaIds":["x"],"combinedApproach":"c","consensus":0.3,"readyToSpawn":true,` +
				`"spawnRecommendation":{"requiredCapabilities":["research","optimization"],"reasoning":"need more"}}`,
		},
	}
	o := newOrchestrator(backend)
	mandate := domain.Mandate{Title: "T", MaxIterations: 5, MaxAgents: 4}
	run := o.NewRun(mandate)
	if run.Pop.Size() != 4 {
		t.Fatalf("seed population = %d, want 4", run.Pop.Size())
	}

	o.Execute(context.Background(), run)
	snap := run.Snapshot()
	if snap.Reason != "agent_cap" {
		t.Fatalf("reason = %q, want agent_cap", snap.Reason)
	}
	if snap.PopulationSize != 4 {
		t.Fatalf("population size = %d, want unchanged at 4", snap.PopulationSize)
	}
}

func TestMaxIterationsZeroCompletesWithoutIdeation(t *testing.T) {
	backend := &scriptedBackend{}
	o := newOrchestrator(backend)
	mandate := domain.Mandate{Title: "T", MaxIterations: 0, MaxAgents: 5}
	run := o.NewRun(mandate)

	o.Execute(context.Background(), run)
	snap := run.Snapshot()
	if snap.Reason != "max_iterations" {
		t.Fatalf("reason = %q, want max_iterations", snap.Reason)
	}
	if snap.Iteration != 0 {
		t.Fatalf("iteration = %d, want 0", snap.Iteration)
	}
}

func TestBreedRequiresGeneticDistance(t *testing.T) {
	backend := &scriptedBackend{}
	o := newOrchestrator(backend)
	mandate := domain.Mandate{Title: "T", MaxIterations: 1, MaxAgents: 10}
	run := o.NewRun(mandate)

	snaps := run.Pop.Snapshot()
	_, err := o.Breed(run, snaps[0].ID, snaps[0].ID, "ideator")
	if err == nil {
		t.Fatal("expected error breeding an agent with itself (distance 0)")
	}
}
