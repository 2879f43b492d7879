// Package dna implements the Genesis Engine's DNA Library (spec.md §4.2):
// pure trait algebra with no I/O. Every exported function here is a value
// operation — crossover, mutation, breeding, distance, diversity, and
// selection all take values and return values.
package dna

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Capability tags a DNA record can carry (spec §3).
type Capability string

const (
	CapabilityIdeation     Capability = "ideation"
	CapabilitySimulation   Capability = "simulation"
	CapabilityCritique     Capability = "critique"
	CapabilitySynthesis    Capability = "synthesis"
	CapabilityOptimization Capability = "optimization"
	CapabilityResearch     Capability = "research"
)

// MutationKind classifies an entry in a DNA's append-only mutation log.
type MutationKind string

const (
	MutationTraitAdjustment      MutationKind = "trait_adjustment"
	MutationCapabilityAddition   MutationKind = "capability_addition"
	MutationToolAddition         MutationKind = "tool_addition"
	MutationInstructionModified  MutationKind = "instruction_modification"
)

// Traits is the four-scalar vector in [0,1]: creativity, precision, speed,
// collaboration. Missing entries default to 0.5; arithmetic is always
// followed by clamping.
type Traits struct {
	Creativity    float64 `json:"creativity"`
	Precision     float64 `json:"precision"`
	Speed         float64 `json:"speed"`
	Collaboration float64 `json:"collaboration"`
}

// DefaultTraits returns the neutral 0.5-everywhere vector.
func DefaultTraits() Traits {
	return Traits{Creativity: 0.5, Precision: 0.5, Speed: 0.5, Collaboration: 0.5}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamp returns t with every field clamped to [0,1].
func (t Traits) Clamp() Traits {
	return Traits{
		Creativity:    clamp01(t.Creativity),
		Precision:     clamp01(t.Precision),
		Speed:         clamp01(t.Speed),
		Collaboration: clamp01(t.Collaboration),
	}
}

// mapEach applies fn to each named trait value in a fixed order, returning
// a new Traits built from fn's results.
func (t Traits) mapEach(fn func(name string, v float64) float64) Traits {
	return Traits{
		Creativity:    fn("creativity", t.Creativity),
		Precision:     fn("precision", t.Precision),
		Speed:         fn("speed", t.Speed),
		Collaboration: fn("collaboration", t.Collaboration),
	}.Clamp()
}

// MutationLogEntry is one append-only record of how a DNA changed after
// creation.
type MutationLogEntry struct {
	Kind        MutationKind   `json:"kind"`
	Timestamp   time.Time      `json:"timestamp"`
	Description string         `json:"description"`
	Delta       map[string]any `json:"delta,omitempty"`
}

// DNA is the immutable-on-creation agent genome of spec.md §3.
type DNA struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Traits          Traits              `json:"traits"`
	Capabilities    map[Capability]bool `json:"capabilities"`
	Model           string              `json:"model"`
	Instruction     string              `json:"instruction"`
	Tools           map[string]bool     `json:"tools"`
	Generation      int                 `json:"generation"`
	ParentIDs       []string            `json:"parentIds"`
	BirthTimestamp  time.Time           `json:"birthTimestamp"`
	MutationLog     []MutationLogEntry  `json:"mutationLog"`
}

// NewRoot constructs a generation-0 DNA record with no parents.
func NewRoot(name, model, instruction string, traits Traits, caps []Capability) *DNA {
	capSet := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		capSet[c] = true
	}
	return &DNA{
		ID:             uuid.NewString(),
		Name:           name,
		Traits:         traits.Clamp(),
		Capabilities:   capSet,
		Model:          model,
		Instruction:    instruction,
		Tools:          make(map[string]bool),
		Generation:     0,
		ParentIDs:      nil,
		BirthTimestamp: time.Now(),
	}
}

// CapabilityList returns the DNA's capabilities as a slice in map
// iteration order, which is not stable between calls; callers needing
// determinism should sort the result themselves.
func (d *DNA) CapabilityList() []Capability {
	out := make([]Capability, 0, len(d.Capabilities))
	for c := range d.Capabilities {
		out = append(out, c)
	}
	return out
}

// Crossover produces a trait vector that is a weighted average of a and b
// using a single random weight w in [0.3, 0.7] applied to all four traits
// for this call (spec §4.2).
func Crossover(a, b Traits) Traits {
	w := 0.3 + rand.Float64()*0.4
	return crossoverWithWeight(a, b, w)
}

func crossoverWithWeight(a, b Traits, w float64) Traits {
	return Traits{
		Creativity:    a.Creativity*w + b.Creativity*(1-w),
		Precision:     a.Precision*w + b.Precision*(1-w),
		Speed:         a.Speed*w + b.Speed*(1-w),
		Collaboration: a.Collaboration*w + b.Collaboration*(1-w),
	}.Clamp()
}

// Mutate applies, independently per trait with probability rate, uniform
// noise in [-0.2, +0.2], clamped to [0,1] (spec §4.2).
func Mutate(t Traits, rate float64) Traits {
	return t.mapEach(func(_ string, v float64) float64 {
		if rand.Float64() >= rate {
			return v
		}
		noise := (rand.Float64()*2 - 1) * 0.2
		return v + noise
	})
}

// GeneticDistance is the mean absolute per-trait difference, in [0,1]
// (spec §4.2): symmetric and reflexive by construction.
func GeneticDistance(a, b Traits) float64 {
	sum := math.Abs(a.Creativity-b.Creativity) +
		math.Abs(a.Precision-b.Precision) +
		math.Abs(a.Speed-b.Speed) +
		math.Abs(a.Collaboration-b.Collaboration)
	return sum / 4
}

// Diversity is the mean pairwise genetic distance across a population; 0
// for populations of size <= 1 (spec §4.2, §8).
func Diversity(traits []Traits) float64 {
	n := len(traits)
	if n <= 1 {
		return 0
	}
	var sum float64
	var pairs int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += GeneticDistance(traits[i], traits[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}

// dominantTrait returns the name of t's highest-value trait.
func dominantTrait(t Traits) string {
	best := "creativity"
	bestVal := t.Creativity
	if t.Precision > bestVal {
		best, bestVal = "precision", t.Precision
	}
	if t.Speed > bestVal {
		best, bestVal = "speed", t.Speed
	}
	if t.Collaboration > bestVal {
		best, bestVal = "collaboration", t.Collaboration
	}
	return best
}

func unionBool(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

func unionCapabilities(a, b map[Capability]bool) map[Capability]bool {
	out := make(map[Capability]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

// childName deterministically composes a hybrid's name from its parents.
func childName(a, b *DNA) string {
	an := strings.SplitN(a.Name, "-", 2)[0]
	bn := strings.SplitN(b.Name, "-", 2)[0]
	return fmt.Sprintf("%s-%s-g%d", an, bn, maxInt(a.Generation, b.Generation)+1)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Breed performs crossover + mutation of two parents, merging capability
// and tool sets, bumping generation, and recording parentage (spec §4.2).
// The returned DNA is registered nowhere; callers (internal/population,
// internal/evolution) own committing it to the population and lineage.
func Breed(parent1, parent2 *DNA, rate float64) *DNA {
	traits := Mutate(Crossover(parent1.Traits, parent2.Traits), rate)
	gen := maxInt(parent1.Generation, parent2.Generation) + 1

	instruction := fmt.Sprintf(
		"Blend of %q and %q (gen %d). Parent 1 focus: %s. Parent 2 focus: %s. "+
			"Resulting trait vector: creativity=%.2f precision=%.2f speed=%.2f collaboration=%.2f.",
		parent1.Name, parent2.Name, gen,
		summarizeInstruction(parent1.Instruction),
		summarizeInstruction(parent2.Instruction),
		traits.Creativity, traits.Precision, traits.Speed, traits.Collaboration,
	)

	child := &DNA{
		ID:             uuid.NewString(),
		Name:           childName(parent1, parent2),
		Traits:         traits,
		Capabilities:   unionCapabilities(parent1.Capabilities, parent2.Capabilities),
		Model:          parent1.Model,
		Instruction:    instruction,
		Tools:          unionBool(parent1.Tools, parent2.Tools),
		Generation:     gen,
		ParentIDs:      []string{parent1.ID, parent2.ID},
		BirthTimestamp: time.Now(),
	}
	return child
}

func summarizeInstruction(s string) string {
	const maxLen = 80
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Specialize builds a de-novo specialist DNA from an average trait vector
// with a role-specific nudge (spec §4.6): +0.20 on dominant trait, and for
// critique an additional -0.10 on creativity. Specialists have no parents.
func Specialize(name, model, instruction string, avg Traits, capabilities []Capability, isCritique bool) *DNA {
	nudged := avg
	switch dominantTrait(avg) {
	case "creativity":
		nudged.Creativity += 0.20
	case "precision":
		nudged.Precision += 0.20
	case "speed":
		nudged.Speed += 0.20
	case "collaboration":
		nudged.Collaboration += 0.20
	}
	if isCritique {
		nudged.Creativity -= 0.10
	}
	nudged = nudged.Clamp()

	return NewRoot(name, model, instruction, nudged, capabilities)
}

// RecordMutation appends a mutation-log entry. DNA is immutable-on-creation
// in the sense that identity/generation/parentage never change after birth,
// but the mutation log itself is append-only metadata about later edits
// (e.g. an operator adjusting an agent's instruction text).
func (d *DNA) RecordMutation(kind MutationKind, description string, delta map[string]any) {
	d.MutationLog = append(d.MutationLog, MutationLogEntry{
		Kind:        kind,
		Timestamp:   time.Now(),
		Description: description,
		Delta:       delta,
	})
}
