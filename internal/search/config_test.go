package search

import (
	"context"
	"testing"

	"github.com/GoSim-25-26J-441/tune-core/internal/acquisition"
	"github.com/GoSim-25-26J-441/tune-core/internal/evaluator"
	"github.com/GoSim-25-26J-441/tune-core/pkg/config"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg, err := config.ParseSearchYAMLString(`
direction: minimize
strategy: annealing
max_iterations: 40
seed: 9
initial:
  grid:
    levels: 3
bayes:
  acquisition: confidence_bound
  kappa: 2
anneal:
  radius: [0.1, 0.2]
  flip: 0
  restart: 4
parameters:
  - name: x
    type: double
    range: [0, 1]
`)
	if err != nil {
		t.Fatalf("ParseSearchYAMLString: %v", err)
	}

	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	if opts.Direction != models.Minimize || opts.Strategy != StrategyAnnealing {
		t.Fatalf("unexpected direction/strategy: %s %s", opts.Direction, opts.Strategy)
	}
	if opts.MaxIterations != 40 || opts.NoImprove != 10 || opts.Seed != 9 {
		t.Fatalf("unexpected budget settings: %+v", opts)
	}
	if opts.InitialGrid != 3 || opts.InitialSize != 0 {
		t.Fatalf("expected grid design only, got grid=%d size=%d", opts.InitialGrid, opts.InitialSize)
	}
	if cb, ok := opts.Acquisition.(acquisition.ConfidenceBound); !ok || cb.Kappa != 2 {
		t.Fatalf("expected confidence bound with kappa 2, got %#v", opts.Acquisition)
	}
	n := opts.Neighborhood
	if n.RadiusMin != 0.1 || n.RadiusMax != 0.2 || n.FlipProb != 0 {
		t.Fatalf("unexpected neighborhood: %+v", n)
	}
	if opts.RestartAfter != 4 || opts.Coefficient != 0.02 {
		t.Fatalf("unexpected annealing settings: restart=%d coef=%v", opts.RestartAfter, opts.Coefficient)
	}
}

func TestOptionsFromConfigKeepsZeroCounts(t *testing.T) {
	cfg, err := config.ParseSearchYAMLString(`
strategy: annealing
max_iterations: 0
failure_threshold: 0
anneal:
  restart: 0
parameters:
  - name: x
    type: double
    range: [0, 1]
`)
	if err != nil {
		t.Fatalf("ParseSearchYAMLString: %v", err)
	}
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	if opts.MaxIterations != 0 || opts.FailureThreshold != 0 || opts.RestartAfter != 0 {
		t.Fatalf("expected zero counts, got max=%d failures=%d restart=%d",
			opts.MaxIterations, opts.FailureThreshold, opts.RestartAfter)
	}

	s, err := New(unitSpace(t), evaluator.Func(bowl), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Iterations != 0 || len(result.History) != opts.InitialSize {
		t.Fatalf("expected only the initial design, got %d iterations and %d observations", result.Iterations, len(result.History))
	}
}

func TestOptionsFromConfigNil(t *testing.T) {
	if _, err := OptionsFromConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
