package population

import (
	"context"
	"fmt"
	"time"

	"github.com/evoforge/evoforge/internal/domain"
	"github.com/evoforge/evoforge/internal/oracle"
	"github.com/google/uuid"
)

// simSchema / critSchema / synthSchema are the shallow field-type maps
// handed to oracle.Client.AskStructured (spec §4.1). ideaSchema is not: the
// ideator asks for an array with no schema, and each element is checked
// against ideaSchema's field names (presence only) by validateAgainst.
var ideaSchema = oracle.Schema{
	"title":       oracle.FieldString,
	"description": oracle.FieldString,
	"approach":    oracle.FieldString,
	"novelty":     oracle.FieldNumber,
}

var simSchema = oracle.Schema{
	"viability": oracle.FieldNumber,
}

var critSchema = oracle.Schema{
	"assessment": oracle.FieldString,
	"confidence": oracle.FieldNumber,
}

var synthSchema = oracle.Schema{
	"consensus":    oracle.FieldNumber,
	"readyToSpawn": oracle.FieldBoolean,
}

func asString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func asFloat(m map[string]any, key, fallback float64) float64 {
	if v, ok := m[key].(float64); ok {
		return clamp01(v)
	}
	return fallback
}

func asStringSlice(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
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

// RunIdeator asks agent to produce `count` ideas for mandate. On oracle
// exhaustion it returns an empty list and a nil error (spec §4.3: the
// iteration continues iff at least one ideator produced at least one idea,
// so an ideator's own failure must not abort the iteration).
func RunIdeator(ctx context.Context, agent *Agent, oc *oracle.Client, mandate domain.Mandate, count int) ([]domain.Idea, error) {
	prompt := fmt.Sprintf(
		"You are an ideation agent with traits creativity=%.2f precision=%.2f speed=%.2f collaboration=%.2f.\n"+
			"%s\n\nMandate: %s\nDescription: %s\nConstraints: %v\nSuccess criteria: %v\n\n"+
			"Propose %d distinct ideas as a JSON array, each object with fields "+
			"title, description, approach, novelty (0-1).",
		agent.DNA.Traits.Creativity, agent.DNA.Traits.Precision, agent.DNA.Traits.Speed, agent.DNA.Traits.Collaboration,
		agent.DNA.Instruction, mandate.Title, mandate.Description, mandate.Constraints, mandate.SuccessCriteria, count,
	)

	result, err := oc.AskStructured(ctx, agent.DNA.Model, prompt, oracle.ShapeJSONArray, nil)
	if err != nil {
		return nil, nil
	}

	arr, ok := result.([]any)
	if !ok {
		return nil, nil
	}

	ideas := make([]domain.Idea, 0, len(arr))
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if err := validateAgainst(obj, ideaSchema); err != nil {
			continue
		}
		ideas = append(ideas, domain.Idea{
			ID:          uuid.NewString(),
			OriginAgent: agent.DNA.ID,
			Title:       asString(obj, "title"),
			Description: asString(obj, "description"),
			Approach:    asString(obj, "approach"),
			Novelty:     asFloat(obj, "novelty", 0.5),
			Timestamp:   time.Now(),
		})
	}
	return ideas, nil
}

// RunSimulator asks agent to simulate one idea. On oracle exhaustion it
// returns a safe neutral-score fallback rather than erroring (spec §4.3).
func RunSimulator(ctx context.Context, agent *Agent, oc *oracle.Client, idea domain.Idea) domain.Simulation {
	prompt := fmt.Sprintf(
		"You are a simulation agent with traits creativity=%.2f precision=%.2f speed=%.2f collaboration=%.2f.\n"+
			"%s\n\nSimulate viability for idea %q: %s (approach: %s).\n"+
			"Respond as a JSON object with fields viability (0-1), metrics (object of numbers), "+
			"risks (array of strings, at least 1), recommendations (array of strings, at least 1).",
		agent.DNA.Traits.Creativity, agent.DNA.Traits.Precision, agent.DNA.Traits.Speed, agent.DNA.Traits.Collaboration,
		agent.DNA.Instruction, idea.Title, idea.Description, idea.Approach,
	)

	result, err := oc.AskStructured(ctx, agent.DNA.Model, prompt, oracle.ShapeJSONObject, simSchema)
	if err != nil {
		return domain.Simulation{
			ID:              uuid.NewString(),
			OriginAgent:     agent.DNA.ID,
			IdeaID:          idea.ID,
			Viability:       0.5,
			Metrics:         map[string]float64{},
			Risks:           []string{"oracle unavailable: simulation could not be completed"},
			Recommendations: []string{"retry simulation once the oracle recovers"},
			Timestamp:       time.Now(),
		}
	}

	obj := result.(map[string]any)
	metrics := map[string]float64{}
	if raw, ok := obj["metrics"].(map[string]any); ok {
		for k, v := range raw {
			if f, ok := v.(float64); ok {
				metrics[k] = f
			}
		}
	}
	risks := asStringSlice(obj, "risks")
	if len(risks) == 0 {
		risks = []string{"none reported"}
	}
	recs := asStringSlice(obj, "recommendations")
	if len(recs) == 0 {
		recs = []string{"none reported"}
	}

	return domain.Simulation{
		ID:              uuid.NewString(),
		OriginAgent:     agent.DNA.ID,
		IdeaID:          idea.ID,
		Viability:       asFloat(obj, "viability", 0.5),
		Metrics:         metrics,
		Risks:           risks,
		Recommendations: recs,
		Timestamp:       time.Now(),
	}
}

// RunCritic asks agent to critique a target (idea or simulation id plus its
// rendered description). On oracle exhaustion it returns a neutral
// needs_revision fallback.
func RunCritic(ctx context.Context, agent *Agent, oc *oracle.Client, targetID, targetDescription string) domain.Critique {
	prompt := fmt.Sprintf(
		"You are a critique agent with traits creativity=%.2f precision=%.2f speed=%.2f collaboration=%.2f.\n"+
			"%s\n\nCritique: %s\n\n"+
			"Respond as a JSON object with fields flaws (array), strengths (array), "+
			"biasesDetected (array), assessment (one of approve|needs_revision|reject), confidence (0-1).",
		agent.DNA.Traits.Creativity, agent.DNA.Traits.Precision, agent.DNA.Traits.Speed, agent.DNA.Traits.Collaboration,
		agent.DNA.Instruction, targetDescription,
	)

	result, err := oc.AskStructured(ctx, agent.DNA.Model, prompt, oracle.ShapeJSONObject, critSchema)
	if err != nil {
		return domain.Critique{
			ID:          uuid.NewString(),
			OriginAgent: agent.DNA.ID,
			TargetID:    targetID,
			Assessment:  domain.AssessmentNeedsRevision,
			Confidence:  0.5,
			Timestamp:   time.Now(),
		}
	}

	obj := result.(map[string]any)
	assessment := domain.Assessment(asString(obj, "assessment"))
	switch assessment {
	case domain.AssessmentApprove, domain.AssessmentNeedsRevision, domain.AssessmentReject:
	default:
		assessment = domain.AssessmentNeedsRevision
	}

	return domain.Critique{
		ID:             uuid.NewString(),
		OriginAgent:    agent.DNA.ID,
		TargetID:       targetID,
		Flaws:          asStringSlice(obj, "flaws"),
		Strengths:      asStringSlice(obj, "strengths"),
		BiasesDetected: asStringSlice(obj, "biasesDetected"),
		Assessment:     assessment,
		Confidence:     asFloat(obj, "confidence", 0.5),
		Timestamp:      time.Now(),
	}
}

// RunSynthesizer asks agent to synthesize the current iteration's full
// tri-list. On oracle exhaustion it returns a zero-consensus,
// not-ready-to-spawn fallback. A zero-idea input also yields consensus=0,
// readyToSpawn=false without calling the oracle at all (spec §8 boundary
// case).
func RunSynthesizer(ctx context.Context, agent *Agent, oc *oracle.Client, ideas []domain.Idea, sims []domain.Simulation, crits []domain.Critique) domain.Synthesis {
	if len(ideas) == 0 {
		return domain.Synthesis{
			ID:           uuid.NewString(),
			Consensus:    0,
			ReadyToSpawn: false,
			Timestamp:    time.Now(),
		}
	}

	prompt := fmt.Sprintf(
		"You are a synthesis agent with traits creativity=%.2f precision=%.2f speed=%.2f collaboration=%.2f.\n"+
			"%s\n\n%d ideas, %d simulations, %d critiques were produced this iteration.\n"+
			"Respond as a JSON object with fields topIdeaIds (array, up to 3), combinedApproach (string), "+
			"consensus (0-1), readyToSpawn (boolean), and optionally spawnRecommendation "+
			"{requiredCapabilities (array, non-empty if readyToSpawn), reasoning (string)}.",
		agent.DNA.Traits.Creativity, agent.DNA.Traits.Precision, agent.DNA.Traits.Speed, agent.DNA.Traits.Collaboration,
		agent.DNA.Instruction, len(ideas), len(sims), len(crits),
	)

	result, err := oc.AskStructured(ctx, agent.DNA.Model, prompt, oracle.ShapeJSONObject, synthSchema)
	if err != nil {
		return domain.Synthesis{
			ID:           uuid.NewString(),
			Consensus:    0,
			ReadyToSpawn: false,
			Timestamp:    time.Now(),
		}
	}

	obj := result.(map[string]any)
	topIDs := asStringSlice(obj, "topIdeaIds")
	maxTop := 3
	if len(ideas) < maxTop {
		maxTop = len(ideas)
	}
	if len(topIDs) > maxTop {
		topIDs = topIDs[:maxTop]
	}
	if len(topIDs) == 0 {
		for i := 0; i < maxTop; i++ {
			topIDs = append(topIDs, ideas[i].ID)
		}
	}

	readyToSpawn := false
	if v, ok := obj["readyToSpawn"].(bool); ok {
		readyToSpawn = v
	}

	var spawnRec *domain.SpawnRecommendation
	if readyToSpawn {
		if raw, ok := obj["spawnRecommendation"].(map[string]any); ok {
			caps := asStringSlice(raw, "requiredCapabilities")
			if len(caps) > 0 {
				spawnRec = &domain.SpawnRecommendation{
					RequiredCapabilities: caps,
					Reasoning:            asString(raw, "reasoning"),
				}
			}
		}
		// spec §4.3: "if ready-to-spawn is true, the spawn recommendation
		// must identify at least one capability" — otherwise treat as not ready.
		if spawnRec == nil {
			readyToSpawn = false
		}
	}

	return domain.Synthesis{
		ID:               uuid.NewString(),
		TopIdeaIDs:       topIDs,
		CombinedApproach: asString(obj, "combinedApproach"),
		Consensus:        asFloat(obj, "consensus", 0),
		ReadyToSpawn:     readyToSpawn,
		SpawnRec:         spawnRec,
		Timestamp:        time.Now(),
	}
}

func validateAgainst(obj map[string]any, schema oracle.Schema) error {
	for field := range schema {
		if _, ok := obj[field]; !ok {
			return fmt.Errorf("missing field %s", field)
		}
	}
	return nil
}
