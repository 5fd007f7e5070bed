package search

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/GoSim-25-26J-441/tune-core/internal/acquisition"
	"github.com/GoSim-25-26J-441/tune-core/internal/anneal"
	"github.com/GoSim-25-26J-441/tune-core/internal/gp"
	"github.com/GoSim-25-26J-441/tune-core/internal/progress"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
)

// Strategy selects how candidates are proposed and judged
type Strategy string

const (
	StrategyBayesian  Strategy = "bayesian"
	StrategyAnnealing Strategy = "annealing"
)

// ErrInvalidOptions is returned before any evaluation when options are contradictory
var ErrInvalidOptions = errors.New("invalid search options")

// Options configure a search. Use DefaultOptions and override fields.
type Options struct {
	SearchID  string
	Direction models.Direction
	Strategy  Strategy

	// MaxIterations caps the iterations after the initial design
	MaxIterations int
	// NoImprove stops the search after this many iterations without a new best
	NoImprove int

	// Initial design. Explicit configurations, a regular grid (InitialGrid
	// levels per parameter) or a Latin hypercube of InitialSize points.
	// Prior observations from an earlier search are ingested as-is.
	Initial     []params.Configuration
	InitialGrid int
	InitialSize int
	Prior       []models.Observation

	// Seed drives every random draw. Zero picks a clock seed in New; the
	// seed in use is reported in the result.
	Seed int64

	// Bayesian optimization
	PoolSize       int
	Acquisition    acquisition.Function
	UncertainAfter int
	GP             gp.Options

	// Simulated annealing
	Neighborhood anneal.Neighborhood
	Coefficient  float64
	RestartAfter int

	// FailureThreshold stops the search once consecutive evaluation failures exceed it
	FailureThreshold int

	// Workers bounds candidate-pool scoring goroutines (GOMAXPROCS when 0)
	Workers int

	Sink   progress.Sink
	Logger *slog.Logger
}

// DefaultOptions returns the stock settings
func DefaultOptions() Options {
	return Options{
		Direction:        models.Maximize,
		Strategy:         StrategyBayesian,
		MaxIterations:    25,
		NoImprove:        10,
		InitialSize:      5,
		PoolSize:         5000,
		Acquisition:      acquisition.ExpectedImprovement{},
		Neighborhood:     anneal.DefaultNeighborhood(),
		Coefficient:      0.02,
		RestartAfter:     8,
		FailureThreshold: 3,
	}
}

func (o *Options) validate() error {
	if !o.Direction.Valid() {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidOptions, o.Direction)
	}
	if o.Strategy != StrategyBayesian && o.Strategy != StrategyAnnealing {
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidOptions, o.Strategy)
	}
	if o.MaxIterations < 0 {
		return fmt.Errorf("%w: max iterations cannot be negative", ErrInvalidOptions)
	}
	if o.NoImprove < 1 {
		return fmt.Errorf("%w: no-improvement budget must be positive", ErrInvalidOptions)
	}
	if o.InitialSize < 0 || o.InitialGrid < 0 || o.FailureThreshold < 0 || o.UncertainAfter < 0 || o.RestartAfter < 0 {
		return fmt.Errorf("%w: counts cannot be negative", ErrInvalidOptions)
	}
	if o.InitialGrid == 1 {
		return fmt.Errorf("%w: a grid needs at least 2 levels", ErrInvalidOptions)
	}
	if len(o.Initial) == 0 && o.InitialGrid == 0 && o.InitialSize == 0 && len(o.Prior) == 0 {
		return fmt.Errorf("%w: an initial design is required", ErrInvalidOptions)
	}
	switch o.Strategy {
	case StrategyBayesian:
		if o.PoolSize < 1 {
			return fmt.Errorf("%w: pool size must be positive", ErrInvalidOptions)
		}
	case StrategyAnnealing:
		n := o.Neighborhood
		if n.RadiusMin <= 0 || n.RadiusMin > n.RadiusMax {
			return fmt.Errorf("%w: neighborhood radius must satisfy 0 < min <= max", ErrInvalidOptions)
		}
		if n.FlipProb < 0 || n.FlipProb > 1 {
			return fmt.Errorf("%w: flip probability must be in [0, 1]", ErrInvalidOptions)
		}
		if o.Coefficient <= 0 {
			return fmt.Errorf("%w: cooling coefficient must be positive", ErrInvalidOptions)
		}
	}
	return nil
}
