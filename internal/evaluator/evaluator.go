// Package evaluator provides the performance evaluators a search calls once
// per configuration: in-process functions, resampled fold evaluators and
// remote evaluators reached over HTTP or gRPC.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
)

// ErrInvalidEstimate is returned when an evaluator produces a non-finite
// mean or a negative standard error
var ErrInvalidEstimate = errors.New("invalid performance estimate")

// Evaluator returns a resampled performance estimate for one configuration.
// Implementations should be deterministic for a fixed seed policy.
type Evaluator interface {
	Evaluate(ctx context.Context, cfg params.Configuration) (models.Estimate, error)
}

// Func adapts a plain function to the Evaluator interface
type Func func(ctx context.Context, cfg params.Configuration) (models.Estimate, error)

func (f Func) Evaluate(ctx context.Context, cfg params.Configuration) (models.Estimate, error) {
	return f(ctx, cfg)
}

// Validate checks an estimate before it is recorded as an observation
func Validate(est models.Estimate) error {
	if math.IsNaN(est.Mean) || math.IsInf(est.Mean, 0) {
		return fmt.Errorf("%w: mean %v", ErrInvalidEstimate, est.Mean)
	}
	if math.IsNaN(est.StdErr) || math.IsInf(est.StdErr, 0) || est.StdErr < 0 {
		return fmt.Errorf("%w: std_err %v", ErrInvalidEstimate, est.StdErr)
	}
	return nil
}
