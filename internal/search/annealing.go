package search

import (
	"context"

	"github.com/GoSim-25-26J-441/tune-core/internal/anneal"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
)

// annealer walks the space from the last accepted configuration
type annealer struct {
	run        *run
	controller anneal.Controller
}

func newAnnealer(r *run) *annealer {
	return &annealer{
		run: r,
		controller: anneal.Controller{
			Direction:    r.opts.Direction,
			Coefficient:  r.opts.Coefficient,
			RestartAfter: r.opts.RestartAfter,
		},
	}
}

func (a *annealer) propose(_ context.Context, st State) (params.Configuration, bool) {
	r := a.run
	cfg, err := r.opts.Neighborhood.Propose(r.space, st.Current, st.observed(), r.rng)
	if err != nil {
		r.log.Debug("neighbor proposal failed", "iteration", st.Iteration, "error", err)
		return params.Configuration{}, false
	}
	return cfg, false
}

func (a *annealer) decide(st State, obs models.Observation) (State, models.Decision) {
	best, _ := st.Best()
	// always draw so the random sequence does not depend on the outcome
	draw := a.run.rng.Float64()
	verdict := a.controller.Decide(best.Mean, st.CurrentMean, obs.Mean, st.Iteration, draw)

	st, _ = st.observe(obs, a.run.opts.Direction)
	if verdict.Accepted() {
		st.Current = obs.Config
		st.CurrentMean = obs.Mean
	}
	if verdict.Decision == models.DecisionAcceptedSuboptimal || verdict.Decision == models.DecisionDiscarded {
		a.run.log.Debug("suboptimal candidate",
			"iteration", st.Iteration,
			"decision", verdict.Decision,
			"percent_diff", verdict.PercentDiff,
			"probability", verdict.Probability)
	}
	return st, verdict.Decision
}

// restart moves the walk back to the best configuration after too many
// iterations without a new best. History is untouched.
func (a *annealer) restart(st State) (State, bool) {
	if !a.controller.ShouldRestart(st.SinceBest) {
		return st, false
	}
	best, ok := st.Best()
	if !ok {
		return st, false
	}
	st.Current = best.Config
	st.CurrentMean = best.Mean
	st.Restarts++
	st.SinceBest = 0
	a.run.log.Info("restarting from best configuration", "iteration", st.Iteration, "restarts", st.Restarts)
	return st, true
}
