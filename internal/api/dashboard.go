package api

import (
	"time"

	"github.com/evoforge/evoforge/internal/domain"
	"github.com/evoforge/evoforge/internal/evolution"
	"github.com/evoforge/evoforge/internal/population"
)

// runSummary is the listing-view shape for GET /runs: enough to render a
// table without pulling each run's full population snapshot.
type runSummary struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	Iteration      int       `json:"iteration"`
	PopulationSize int       `json:"populationSize"`
	StartedAt      time.Time `json:"startedAt"`
}

func summarize(run *evolution.Run) runSummary {
	snap := run.Snapshot()
	return runSummary{
		ID:             snap.ID,
		Title:          run.Mandate.Title,
		Status:         string(snap.Status),
		Reason:         snap.Reason,
		Iteration:      snap.Iteration,
		PopulationSize: snap.PopulationSize,
		StartedAt:      snap.StartedAt,
	}
}

// runDetail is the GET /runs/{id} shape: the full snapshot plus the live
// population and spawn log.
type runDetail struct {
	evolution.Snapshot
	Mandate    domain.Mandate          `json:"mandate"`
	Population []population.Snapshot   `json:"population"`
	SpawnLog   []evolution.SpawnEvent  `json:"spawnLog"`
}

func runView(run *evolution.Run) runDetail {
	return runDetail{
		Snapshot:   run.Snapshot(),
		Mandate:    run.Mandate,
		Population: run.Pop.Snapshot(),
		SpawnLog:   run.SpawnLogSnapshot(),
	}
}
