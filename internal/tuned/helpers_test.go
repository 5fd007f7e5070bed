package tuned

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoSim-25-26J-441/tune-core/internal/evaluator"
	"github.com/GoSim-25-26J-441/tune-core/pkg/config"
	"github.com/GoSim-25-26J-441/tune-core/pkg/logger"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
)

const testSearchYAML = `
direction: maximize
strategy: bayesian
max_iterations: 4
no_improve: 10
seed: 3
initial:
  size: 3
bayes:
  pool_size: 100
evaluator:
  type: http
  url: http://evaluator.invalid/v1/evaluate
parameters:
  - name: x
    type: double
    range: [0, 1]
  - name: y
    type: double
    range: [0, 1]
`

func bowl(_ context.Context, cfg params.Configuration) (models.Estimate, error) {
	dx := cfg.Float("x") - 0.3
	dy := cfg.Float("y") - 0.7
	return models.Estimate{Mean: 1 - dx*dx - dy*dy, StdErr: 0.01}, nil
}

// fakeEvaluators hands out ev and counts releases
type fakeEvaluators struct {
	ev       evaluator.Evaluator
	released atomic.Int32
	lastURL  atomic.Value
}

func (f *fakeEvaluators) factory(c *config.Evaluator) (evaluator.Evaluator, func() error, error) {
	f.lastURL.Store(c.URL)
	return f.ev, func() error {
		f.released.Add(1)
		return nil
	}, nil
}

// gate blocks every evaluation after the first n until released
type gate struct {
	n       int32
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func newGate(n int32) *gate {
	return &gate{n: n, entered: make(chan struct{}, 64), release: make(chan struct{})}
}

func (g *gate) Evaluate(ctx context.Context, cfg params.Configuration) (models.Estimate, error) {
	if g.calls.Add(1) > g.n {
		g.entered <- struct{}{}
		<-g.release
	}
	return bowl(ctx, cfg)
}

func newTestExecutor(t *testing.T, ev evaluator.Evaluator, opts ...ExecutorOption) (*JobStore, *Executor, *fakeEvaluators) {
	t.Helper()
	fakes := &fakeEvaluators{ev: ev}
	jobs := NewJobStore()
	opts = append([]ExecutorOption{WithEvaluatorFactory(fakes.factory), WithLogger(logger.Discard())}, opts...)
	return jobs, NewExecutor(jobs, opts...), fakes
}

func waitForStatus(t *testing.T, jobs *JobStore, id string, want JobStatus) Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := jobs.Get(id); ok && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := jobs.Get(id)
	t.Fatalf("timed out waiting for %s, job is %s (%s)", want, job.Status, job.Error)
	return Job{}
}
