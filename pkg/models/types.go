package models

import (
	"time"

	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
)

// Direction is the optimization direction of a search metric
type Direction string

const (
	Maximize Direction = "maximize"
	Minimize Direction = "minimize"
)

// Valid reports whether the direction is known
func (d Direction) Valid() bool {
	return d == Maximize || d == Minimize
}

// Better reports whether a is strictly better than b
func (d Direction) Better(a, b float64) bool {
	if d == Minimize {
		return a < b
	}
	return a > b
}

// Estimate is a resampled performance estimate
type Estimate struct {
	Mean   float64 `json:"mean"`
	StdErr float64 `json:"std_err"`
}

// Observation is one evaluated configuration. Initial-design observations
// carry iteration 0.
type Observation struct {
	Config    params.Configuration `json:"configuration"`
	Mean      float64              `json:"mean"`
	StdErr    float64              `json:"std_err"`
	Iteration int                  `json:"iteration"`
}

// Decision is the outcome recorded for a proposed configuration
type Decision string

const (
	DecisionInitial            Decision = "initial"
	DecisionNewBest            Decision = "new_best"
	DecisionAccepted           Decision = "accepted"
	DecisionAcceptedSuboptimal Decision = "accepted_suboptimal"
	DecisionDiscarded          Decision = "discarded"
	DecisionRestart            Decision = "restart"
	DecisionFailed             Decision = "failed"
)

// ProgressRecord is emitted once per evaluation for external logging
type ProgressRecord struct {
	SearchID  string               `json:"search_id,omitempty"`
	Iteration int                  `json:"iteration"`
	Config    params.Configuration `json:"configuration"`
	Decision  Decision             `json:"decision"`
	Mean      float64              `json:"mean"`
	StdErr    float64              `json:"std_err"`
	Best      float64              `json:"best"`
	Degraded  bool                 `json:"degraded,omitempty"`
	Error     string               `json:"error,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// SearchStatus is the orchestrator state
type SearchStatus string

const (
	StatusInitializing         SearchStatus = "initializing"
	StatusIterating            SearchStatus = "iterating"
	StatusStoppedBudget        SearchStatus = "stopped_budget"
	StatusStoppedNoImprovement SearchStatus = "stopped_no_improvement"
	StatusStoppedInterrupted   SearchStatus = "stopped_interrupted"
)

// Terminal reports whether the status ends a search
func (s SearchStatus) Terminal() bool {
	switch s {
	case StatusStoppedBudget, StatusStoppedNoImprovement, StatusStoppedInterrupted:
		return true
	}
	return false
}

// SearchResult is the result set returned on completion or interruption
type SearchResult struct {
	ID          string        `json:"id,omitempty"`
	Status      SearchStatus  `json:"status"`
	Direction   Direction     `json:"direction"`
	Seed        int64         `json:"seed"`
	Best        *Observation  `json:"best,omitempty"`
	History     []Observation `json:"history"`
	Iterations  int           `json:"iterations"`
	Restarts    int           `json:"restarts"`
	Failures    int           `json:"failures"`
	FailureStop bool          `json:"failure_stop,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
}

// BestOf returns the index of the best observation, or -1 for an empty slice.
// Ties keep the earliest observation.
func BestOf(obs []Observation, dir Direction) int {
	best := -1
	for i := range obs {
		if best < 0 || dir.Better(obs[i].Mean, obs[best].Mean) {
			best = i
		}
	}
	return best
}
