package evaluator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
)

// FoldFunc fits and scores a model on one resample (fold) of the data
type FoldFunc func(ctx context.Context, cfg params.Configuration, fold int) (float64, error)

// Resampled turns a per-fold metric into an estimate using V-fold
// resampling: the mean over folds and the standard error sd/sqrt(V).
// Folds run concurrently, at most Parallel at a time (all when <= 0).
type Resampled struct {
	Folds    int
	Parallel int
	Fold     FoldFunc
}

// ErrNoFolds is returned when a Resampled evaluator has nothing to run
var ErrNoFolds = errors.New("resampled evaluator needs at least one fold")

func (r *Resampled) Evaluate(ctx context.Context, cfg params.Configuration) (models.Estimate, error) {
	if r.Folds < 1 || r.Fold == nil {
		return models.Estimate{}, ErrNoFolds
	}
	metrics := make([]float64, r.Folds)

	g, gctx := errgroup.WithContext(ctx)
	if r.Parallel > 0 {
		g.SetLimit(r.Parallel)
	}
	for fold := 0; fold < r.Folds; fold++ {
		g.Go(func() error {
			m, err := r.Fold(gctx, cfg, fold)
			if err != nil {
				return fmt.Errorf("fold %d: %w", fold+1, err)
			}
			metrics[fold] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.Estimate{}, err
	}

	if r.Folds == 1 {
		return models.Estimate{Mean: metrics[0]}, nil
	}
	mean, sd := stat.MeanStdDev(metrics, nil)
	return models.Estimate{Mean: mean, StdErr: sd / math.Sqrt(float64(r.Folds))}, nil
}
