// Package acquisition scores surrogate predictions so the search can pick
// the next configuration to evaluate. Every function returns a score where
// higher is better, whatever the optimization direction.
package acquisition

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/GoSim-25-26J-441/tune-core/internal/gp"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/utils"
)

// Function scores one prediction against the current best metric
type Function interface {
	Name() string
	Score(p gp.Prediction, best float64, dir models.Direction) float64
}

// improvement is the predicted gain over best in the search direction
func improvement(mean, best, tradeoff float64, dir models.Direction) float64 {
	if dir == models.Minimize {
		return best - mean - tradeoff
	}
	return mean - best - tradeoff
}

// ExpectedImprovement integrates the gain over the predicted normal
// distribution. Tradeoff shifts the target so larger values explore more.
type ExpectedImprovement struct {
	Tradeoff float64
}

func (ExpectedImprovement) Name() string { return "expected_improvement" }

func (e ExpectedImprovement) Score(p gp.Prediction, best float64, dir models.Direction) float64 {
	imp := improvement(p.Mean, best, e.Tradeoff, dir)
	sd := p.StdDev()
	if sd <= 0 {
		return math.Max(imp, 0)
	}
	z := imp / sd
	return imp*distuv.UnitNormal.CDF(z) + sd*distuv.UnitNormal.Prob(z)
}

// ConfidenceBound ranks by mean ± Kappa·stddev (upper bound when maximizing,
// lower bound when minimizing)
type ConfidenceBound struct {
	Kappa float64
}

func (ConfidenceBound) Name() string { return "confidence_bound" }

func (c ConfidenceBound) Score(p gp.Prediction, _ float64, dir models.Direction) float64 {
	if dir == models.Minimize {
		return -(p.Mean - c.Kappa*p.StdDev())
	}
	return p.Mean + c.Kappa*p.StdDev()
}

// ProbabilityOfImprovement is the chance the prediction beats best by Tradeoff
type ProbabilityOfImprovement struct {
	Tradeoff float64
}

func (ProbabilityOfImprovement) Name() string { return "probability_of_improvement" }

func (pi ProbabilityOfImprovement) Score(p gp.Prediction, best float64, dir models.Direction) float64 {
	imp := improvement(p.Mean, best, pi.Tradeoff, dir)
	sd := p.StdDev()
	if sd <= 0 {
		if imp > 0 {
			return 1
		}
		return 0
	}
	return distuv.UnitNormal.CDF(imp / sd)
}

// Uncertainty ignores the mean and ranks by predicted variance
type Uncertainty struct{}

func (Uncertainty) Name() string { return "uncertainty" }

func (Uncertainty) Score(p gp.Prediction, _ float64, _ models.Direction) float64 {
	return p.Variance
}

// ByName builds a function from its config name
func ByName(name string, tradeoff, kappa float64) (Function, error) {
	switch name {
	case "", "expected_improvement":
		return ExpectedImprovement{Tradeoff: tradeoff}, nil
	case "confidence_bound":
		return ConfidenceBound{Kappa: kappa}, nil
	case "probability_of_improvement":
		return ProbabilityOfImprovement{Tradeoff: tradeoff}, nil
	case "uncertainty":
		return Uncertainty{}, nil
	default:
		return nil, fmt.Errorf("unknown acquisition function: %s", name)
	}
}

// minChunk keeps tiny pools on a single goroutine
const minChunk = 256

// ScorePool scores every candidate with fn. Candidates are split across
// workers goroutines (GOMAXPROCS when workers <= 0); scores keep pool order.
func ScorePool(ctx context.Context, model *gp.Model, pool [][]float64, fn Function, best float64, dir models.Direction, workers int) ([]float64, error) {
	scores := make([]float64, len(pool))
	if len(pool) == 0 {
		return scores, nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (len(pool) + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(pool); start += chunk {
		lo, hi := start, min(start+chunk, len(pool))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%minChunk == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				scores[i] = fn.Score(model.Predict(pool[i]), best, dir)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// SelectBest returns the index of the highest score. Ties go to the
// candidate generated first; NaN scores never win. Returns -1 when no
// score is usable.
func SelectBest(scores []float64) int {
	return utils.ArgMax(scores)
}
