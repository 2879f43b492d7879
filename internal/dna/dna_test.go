package dna

import (
	"math"
	"testing"
)

func TestCrossoverAndMutateStayInBounds(t *testing.T) {
	a := Traits{Creativity: 0.1, Precision: 0.9, Speed: 0.5, Collaboration: 0.2}
	b := Traits{Creativity: 0.95, Precision: 0.05, Speed: 0.8, Collaboration: 0.99}

	for i := 0; i < 200; i++ {
		crossed := Crossover(a, b)
		assertInBounds(t, crossed)
		mutated := Mutate(crossed, 1.0)
		assertInBounds(t, mutated)
	}
}

func assertInBounds(t *testing.T, tr Traits) {
	t.Helper()
	for _, v := range []float64{tr.Creativity, tr.Precision, tr.Speed, tr.Collaboration} {
		if v < 0 || v > 1 {
			t.Fatalf("trait out of bounds: %v", tr)
		}
	}
}

func TestGeneticDistanceSymmetricReflexiveBounded(t *testing.T) {
	a := Traits{Creativity: 0.1, Precision: 0.9, Speed: 0.5, Collaboration: 0.2}
	b := Traits{Creativity: 0.95, Precision: 0.05, Speed: 0.8, Collaboration: 0.99}

	if d := GeneticDistance(a, a); d != 0 {
		t.Errorf("reflexive distance = %v, want 0", d)
	}
	if GeneticDistance(a, b) != GeneticDistance(b, a) {
		t.Error("distance not symmetric")
	}
	d := GeneticDistance(a, b)
	if d < 0 || d > 1 {
		t.Errorf("distance out of [0,1]: %v", d)
	}
}

func TestDiversityZeroForSingleton(t *testing.T) {
	if Diversity(nil) != 0 {
		t.Error("diversity of nil should be 0")
	}
	if Diversity([]Traits{DefaultTraits()}) != 0 {
		t.Error("diversity of |P|=1 should be 0")
	}
}

func TestDiversityMeanPairwise(t *testing.T) {
	traits := []Traits{
		{Creativity: 0, Precision: 0, Speed: 0, Collaboration: 0},
		{Creativity: 1, Precision: 1, Speed: 1, Collaboration: 1},
	}
	got := Diversity(traits)
	want := 1.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("diversity = %v, want %v", got, want)
	}
}

func TestBreedGenerationAndParentage(t *testing.T) {
	p1 := NewRoot("alpha", "m1", "instr1", DefaultTraits(), []Capability{CapabilityIdeation})
	p2 := NewRoot("beta", "m1", "instr2", DefaultTraits(), []Capability{CapabilitySimulation})
	p2.Generation = 2

	child := Breed(p1, p2, 0.5)

	if child.Generation != 3 {
		t.Errorf("generation = %d, want 3", child.Generation)
	}
	if len(child.ParentIDs) != 2 {
		t.Fatalf("expected 2 parent ids, got %d", len(child.ParentIDs))
	}
	if !child.Capabilities[CapabilityIdeation] || !child.Capabilities[CapabilitySimulation] {
		t.Error("expected union of parent capabilities")
	}
	assertInBounds(t, child.Traits)
}

func TestSpecializeNudgesDominantTrait(t *testing.T) {
	avg := Traits{Creativity: 0.8, Precision: 0.3, Speed: 0.3, Collaboration: 0.3}
	spec := Specialize("specialist", "m1", "instr", avg, []Capability{CapabilityIdeation}, false)

	if spec.Traits.Creativity <= avg.Creativity {
		t.Error("expected dominant trait (creativity) to be nudged up")
	}
	if len(spec.ParentIDs) != 0 {
		t.Error("specialists should have no parents")
	}
}

func TestSpecializeCritiqueReducesCreativity(t *testing.T) {
	avg := Traits{Creativity: 0.3, Precision: 0.9, Speed: 0.3, Collaboration: 0.3}
	spec := Specialize("critic", "m1", "instr", avg, []Capability{CapabilityCritique}, true)

	if spec.Traits.Creativity >= avg.Creativity {
		t.Error("expected critique nudge to reduce creativity")
	}
}

func TestSelectionVariants(t *testing.T) {
	candidates := []Candidate{
		{ID: "a", Fitness: 0},
		{ID: "b", Fitness: 0},
		{ID: "c", Fitness: 0},
	}

	// roulette must fall back to uniform when total fitness is 0.
	picked := Roulette(candidates)
	if picked.ID == "" {
		t.Fatal("expected a pick even with zero total fitness")
	}

	winners := []Candidate{
		{ID: "low", Fitness: 0.1},
		{ID: "high", Fitness: 0.9},
	}
	sawHigh := false
	for i := 0; i < 50; i++ {
		if Tournament(winners, 2).ID == "high" {
			sawHigh = true
			break
		}
	}
	if !sawHigh {
		t.Error("tournament with k=len(candidates) should always return the fittest")
	}

	if Rank(nil).ID != "" {
		t.Error("rank of empty set should return zero value")
	}
}
