package search

import (
	"fmt"

	"github.com/GoSim-25-26J-441/tune-core/internal/acquisition"
	"github.com/GoSim-25-26J-441/tune-core/internal/anneal"
	"github.com/GoSim-25-26J-441/tune-core/pkg/config"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
)

// OptionsFromConfig translates a parsed search file into Options. Sink,
// Logger, SearchID and Prior are left for the caller.
func OptionsFromConfig(cfg *config.Search) (Options, error) {
	if cfg == nil {
		return Options{}, fmt.Errorf("%w: search config is nil", ErrInvalidOptions)
	}
	opts := DefaultOptions()
	opts.Direction = models.Direction(cfg.Direction)
	opts.Strategy = Strategy(cfg.Strategy)
	if cfg.MaxIterations != nil {
		opts.MaxIterations = *cfg.MaxIterations
	}
	opts.NoImprove = cfg.NoImprove
	opts.Seed = cfg.Seed
	if cfg.FailureThreshold != nil {
		opts.FailureThreshold = *cfg.FailureThreshold
	}
	opts.Workers = cfg.Workers

	opts.InitialSize = 0
	if in := cfg.Initial; in != nil {
		opts.InitialSize = in.Size
		if in.Grid != nil {
			opts.InitialGrid = in.Grid.Levels
		}
	}

	if b := cfg.Bayes; b != nil {
		fn, err := acquisition.ByName(b.Acquisition, b.Tradeoff, b.Kappa)
		if err != nil {
			return Options{}, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
		opts.Acquisition = fn
		opts.PoolSize = b.PoolSize
		opts.UncertainAfter = b.UncertainAfter
	}

	if a := cfg.Anneal; a != nil {
		n := anneal.DefaultNeighborhood()
		if len(a.Radius) == 2 {
			n.RadiusMin, n.RadiusMax = a.Radius[0], a.Radius[1]
		}
		if a.Flip != nil {
			n.FlipProb = *a.Flip
		}
		opts.Neighborhood = n
		opts.Coefficient = a.CoolingCoef
		if a.Restart != nil {
			opts.RestartAfter = *a.Restart
		}
	}
	return opts, nil
}
