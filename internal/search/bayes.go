package search

import (
	"context"

	"github.com/GoSim-25-26J-441/tune-core/internal/acquisition"
	"github.com/GoSim-25-26J-441/tune-core/internal/design"
	"github.com/GoSim-25-26J-441/tune-core/internal/gp"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
)

// bayes proposes the pool candidate with the highest acquisition score under
// a Gaussian process fit to every observation so far
type bayes struct {
	run *run
	fn  acquisition.Function
}

func newBayes(r *run) *bayes {
	fn := r.opts.Acquisition
	if fn == nil {
		fn = acquisition.ExpectedImprovement{}
	}
	return &bayes{run: r, fn: fn}
}

func (b *bayes) propose(ctx context.Context, st State) (params.Configuration, bool) {
	r := b.run
	pool, encoded := b.pool(st)
	if len(pool) == 0 {
		return design.Random(r.space, 1, r.rng)[0], true
	}

	x := make([][]float64, 0, len(st.History))
	y := make([]float64, 0, len(st.History))
	se := make([]float64, 0, len(st.History))
	for _, o := range st.History {
		u, err := r.space.Encode(o.Config)
		if err != nil {
			continue
		}
		x = append(x, u)
		y = append(y, o.Mean)
		se = append(se, o.StdErr)
	}

	model, err := gp.Fit(x, y, se, r.space.CategoricalMask(), r.opts.GP)
	if err != nil {
		r.log.Warn("surrogate fit failed, using a space-filling candidate", "iteration", st.Iteration, "error", err)
		return pool[0], true
	}

	fn := b.fn
	if r.opts.UncertainAfter > 0 && st.NoImprove > 0 && st.NoImprove%r.opts.UncertainAfter == 0 {
		r.log.Debug("forcing uncertainty sampling", "iteration", st.Iteration, "no_improve", st.NoImprove)
		fn = acquisition.Uncertainty{}
	}

	best, _ := st.Best()
	scores, err := acquisition.ScorePool(ctx, model, encoded, fn, best.Mean, r.opts.Direction, r.opts.Workers)
	if err != nil {
		r.log.Warn("scoring candidate pool failed", "iteration", st.Iteration, "error", err)
		return pool[0], true
	}
	idx := acquisition.SelectBest(scores)
	if idx < 0 {
		return pool[0], true
	}
	return pool[idx], false
}

// pool draws a fresh Latin hypercube and drops configurations already observed
func (b *bayes) pool(st State) ([]params.Configuration, [][]float64) {
	r := b.run
	observed := make(map[string]bool, len(st.History))
	for _, o := range st.History {
		observed[o.Config.Key()] = true
	}
	candidates := design.LatinHypercube(r.space, r.opts.PoolSize, r.rng)
	pool := make([]params.Configuration, 0, len(candidates))
	encoded := make([][]float64, 0, len(candidates))
	for _, c := range candidates {
		if observed[c.Key()] {
			continue
		}
		u, err := r.space.Encode(c)
		if err != nil {
			continue
		}
		pool = append(pool, c)
		encoded = append(encoded, u)
	}
	return pool, encoded
}

func (b *bayes) decide(st State, obs models.Observation) (State, models.Decision) {
	st, isBest := st.observe(obs, b.run.opts.Direction)
	st.Current = obs.Config
	st.CurrentMean = obs.Mean
	if isBest {
		return st, models.DecisionNewBest
	}
	return st, models.DecisionAccepted
}

func (b *bayes) restart(st State) (State, bool) {
	return st, false
}
