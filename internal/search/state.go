package search

import (
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
)

// State is the search state between iterations. Each iteration takes the
// previous state and returns the next one; nothing else mutates it.
type State struct {
	Status    models.SearchStatus
	Iteration int

	// History is append-only. BestIndex points at the best observation, -1 before any.
	History   []models.Observation
	BestIndex int

	// Current is the last accepted configuration, the basis for annealing proposals
	Current     params.Configuration
	CurrentMean float64

	NoImprove           int
	SinceBest           int
	ConsecutiveFailures int
	Failures            int
	Restarts            int
	FailureStop         bool
	Reason              string
}

// Best returns the best observation so far
func (s State) Best() (models.Observation, bool) {
	if s.BestIndex < 0 || s.BestIndex >= len(s.History) {
		return models.Observation{}, false
	}
	return s.History[s.BestIndex], true
}

// observe appends obs and reports whether it is a new best under dir
func (s State) observe(obs models.Observation, dir models.Direction) (State, bool) {
	s.History = append(s.History, obs)
	best, ok := s.Best()
	if !ok || dir.Better(obs.Mean, best.Mean) {
		s.BestIndex = len(s.History) - 1
		return s, true
	}
	return s, false
}

// observed returns the configurations evaluated so far
func (s State) observed() []params.Configuration {
	out := make([]params.Configuration, len(s.History))
	for i, o := range s.History {
		out[i] = o.Config
	}
	return out
}
