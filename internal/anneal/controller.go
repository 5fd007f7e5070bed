package anneal

import (
	"math"

	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
)

// PercentDiff is the signed percent change from current to candidate in the
// search direction: positive when candidate is better, negative when worse.
func PercentDiff(current, candidate float64, dir models.Direction) float64 {
	diff := candidate - current
	if dir == models.Minimize {
		diff = -diff
	}
	denom := math.Abs(current)
	if denom < 1e-12 {
		denom = 1
	}
	return diff / denom * 100
}

// AcceptanceProbability is exp(coef·D·iteration) capped at 1. For a fixed
// iteration and positive coefficient it strictly decreases as D becomes
// more negative, and it shrinks as iterations grow.
func AcceptanceProbability(d float64, iteration int, coef float64) float64 {
	p := math.Exp(coef * d * float64(iteration))
	if p > 1 || math.IsNaN(p) {
		return 1
	}
	return p
}

// Controller decides what happens to an annealing candidate and when the
// walk restarts from the best configuration
type Controller struct {
	Direction    models.Direction
	Coefficient  float64
	RestartAfter int
}

// Verdict is the outcome of Decide
type Verdict struct {
	Decision    models.Decision
	PercentDiff float64
	Probability float64
}

// Accepted reports whether the candidate becomes the new basis for proposals
func (v Verdict) Accepted() bool {
	return v.Decision != models.DecisionDiscarded
}

// Decide compares candidate against the global best and the last accepted
// metric. draw is a uniform number in [0, 1).
func (c Controller) Decide(best, current, candidate float64, iteration int, draw float64) Verdict {
	d := PercentDiff(current, candidate, c.Direction)
	if c.Direction.Better(candidate, best) {
		return Verdict{Decision: models.DecisionNewBest, PercentDiff: d, Probability: 1}
	}
	if c.Direction.Better(candidate, current) {
		return Verdict{Decision: models.DecisionAccepted, PercentDiff: d, Probability: 1}
	}
	p := AcceptanceProbability(d, iteration, c.Coefficient)
	if draw < p {
		return Verdict{Decision: models.DecisionAcceptedSuboptimal, PercentDiff: d, Probability: p}
	}
	return Verdict{Decision: models.DecisionDiscarded, PercentDiff: d, Probability: p}
}

// ShouldRestart reports whether the walk has gone sinceBest iterations
// without a new global best. RestartAfter <= 0 disables restarts.
func (c Controller) ShouldRestart(sinceBest int) bool {
	return c.RestartAfter > 0 && sinceBest >= c.RestartAfter
}
