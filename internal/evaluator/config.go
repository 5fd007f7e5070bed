package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/GoSim-25-26J-441/tune-core/pkg/config"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
)

// Timed bounds every evaluation of Next by Timeout
type Timed struct {
	Next    Evaluator
	Timeout time.Duration
}

func (t Timed) Evaluate(ctx context.Context, cfg params.Configuration) (models.Estimate, error) {
	if t.Timeout <= 0 {
		return t.Next.Evaluate(ctx, cfg)
	}
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()
	return t.Next.Evaluate(ctx, cfg)
}

// FromConfig builds the remote evaluator described by a search file. The
// returned close function releases connections and is never nil.
func FromConfig(c *config.Evaluator) (Evaluator, func() error, error) {
	noop := func() error { return nil }
	if c == nil {
		return nil, noop, fmt.Errorf("evaluator is not configured")
	}
	timeout, err := c.GetTimeout()
	if err != nil {
		return nil, noop, fmt.Errorf("invalid timeout %s: %w", c.Timeout, err)
	}

	var ev Evaluator
	closeFn := noop
	switch c.Type {
	case "http":
		ev = NewHTTP(c.URL,
			WithRetries(c.Retries),
			WithRateLimit(c.RatePerSec),
			WithHeaders(c.Headers),
		)
	case "grpc":
		g, conn, err := DialGRPC(c.URL, c.Retries)
		if err != nil {
			return nil, noop, err
		}
		ev = g
		closeFn = conn.Close
	default:
		return nil, noop, fmt.Errorf("unknown evaluator type: %s", c.Type)
	}
	return NewTraced(Timed{Next: ev, Timeout: timeout}, nil), closeFn, nil
}
