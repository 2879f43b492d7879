// Package domain holds the shared phase-artifact and mandate types of
// spec.md §3 that both internal/population (producers) and
// internal/evolution / internal/swarm (consumers) need, without creating
// an import cycle between them.
package domain

import "time"

// Mandate is the user-supplied problem statement and evolution budget.
type Mandate struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Domain           string    `json:"domain"`
	Constraints      []string  `json:"constraints"`
	SuccessCriteria  []string  `json:"successCriteria"`
	MaxIterations    int       `json:"maxIterations"`
	MaxAgents        int       `json:"maxAgents"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Idea is an ideator's output artifact.
type Idea struct {
	ID          string    `json:"id"`
	OriginAgent string    `json:"originAgentId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Approach    string    `json:"approach"`
	Novelty     float64   `json:"novelty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Simulation is a simulator's output artifact.
type Simulation struct {
	ID              string             `json:"id"`
	OriginAgent     string             `json:"originAgentId"`
	IdeaID          string             `json:"ideaId"`
	Viability       float64            `json:"viability"`
	Metrics         map[string]float64 `json:"metrics"`
	Risks           []string           `json:"risks"`
	Recommendations []string           `json:"recommendations"`
	Timestamp       time.Time          `json:"timestamp"`
}

// Assessment is a critique's verdict.
type Assessment string

const (
	AssessmentApprove        Assessment = "approve"
	AssessmentNeedsRevision  Assessment = "needs_revision"
	AssessmentReject         Assessment = "reject"
)

// Critique is a critic's output artifact.
type Critique struct {
	ID              string     `json:"id"`
	OriginAgent     string     `json:"originAgentId"`
	TargetID        string     `json:"targetId"`
	Flaws           []string   `json:"flaws"`
	Strengths       []string   `json:"strengths"`
	BiasesDetected  []string   `json:"biasesDetected"`
	Assessment      Assessment `json:"assessment"`
	Confidence      float64    `json:"confidence"`
	Timestamp       time.Time  `json:"timestamp"`
}

// SpawnRecommendation is the synthesizer's optional request to create new
// specialist agents.
type SpawnRecommendation struct {
	TraitMixPartial      map[string]float64 `json:"traitMixPartial,omitempty"`
	RequiredCapabilities []string           `json:"requiredCapabilities"`
	Reasoning            string             `json:"reasoning"`
}

// Synthesis is the synthesizer's output artifact.
type Synthesis struct {
	ID               string               `json:"id"`
	TopIdeaIDs       []string             `json:"topIdeaIds"`
	CombinedApproach string               `json:"combinedApproach"`
	Consensus        float64              `json:"consensus"`
	ReadyToSpawn     bool                 `json:"readyToSpawn"`
	SpawnRec         *SpawnRecommendation `json:"spawnRecommendation,omitempty"`
	Timestamp        time.Time            `json:"timestamp"`
}
