package search

import (
	"fmt"

	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
)

// StopRule decides whether the search ends after an iteration
type StopRule interface {
	Check(st State) (status models.SearchStatus, reason string, stop bool)
	Name() string
}

// NoImprovementRule stops after Limit iterations without a new best
type NoImprovementRule struct {
	Limit int
}

func (NoImprovementRule) Name() string { return "no_improvement" }

func (r NoImprovementRule) Check(st State) (models.SearchStatus, string, bool) {
	if r.Limit > 0 && st.NoImprove >= r.Limit {
		return models.StatusStoppedNoImprovement, fmt.Sprintf("no improvement for %d iterations", st.NoImprove), true
	}
	return "", "", false
}

// FailureRule stops once consecutive evaluation failures exceed Threshold
type FailureRule struct {
	Threshold int
}

func (FailureRule) Name() string { return "failures" }

func (r FailureRule) Check(st State) (models.SearchStatus, string, bool) {
	if st.ConsecutiveFailures > r.Threshold {
		return models.StatusStoppedNoImprovement, fmt.Sprintf("%d consecutive evaluation failures", st.ConsecutiveFailures), true
	}
	return "", "", false
}

// BudgetRule stops at MaxIterations
type BudgetRule struct {
	MaxIterations int
}

func (BudgetRule) Name() string { return "budget" }

func (r BudgetRule) Check(st State) (models.SearchStatus, string, bool) {
	if st.Iteration >= r.MaxIterations {
		return models.StatusStoppedBudget, fmt.Sprintf("reached %d iterations", r.MaxIterations), true
	}
	return "", "", false
}

// checkRules returns the first rule that fires
func checkRules(st State, rules []StopRule) (State, bool) {
	for _, r := range rules {
		if status, reason, stop := r.Check(st); stop {
			st.Status = status
			st.Reason = reason
			if _, ok := r.(FailureRule); ok {
				st.FailureStop = true
			}
			return st, true
		}
	}
	return st, false
}
