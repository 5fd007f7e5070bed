package tuned

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/tune-core/internal/evaluator"
	"github.com/GoSim-25-26J-441/tune-core/internal/progress"
	"github.com/GoSim-25-26J-441/tune-core/internal/search"
	"github.com/GoSim-25-26J-441/tune-core/internal/store"
	"github.com/GoSim-25-26J-441/tune-core/pkg/config"
	"github.com/GoSim-25-26J-441/tune-core/pkg/logger"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
)

var (
	ErrJobNotFound = errors.New("search job not found")
	ErrJobExists   = errors.New("search job already exists")
	ErrJobTerminal = errors.New("search job is terminal")
	ErrInvalidJob  = errors.New("invalid search job")
)

// DefaultMetricsRetention is how long a finished search keeps its metric series
const DefaultMetricsRetention = 15 * time.Minute

// EvaluatorFactory builds the evaluator for a job. The returned func
// releases it once the search is done.
type EvaluatorFactory func(*config.Evaluator) (evaluator.Evaluator, func() error, error)

// Executor runs jobs in the background, one goroutine per running search
type Executor struct {
	jobs         *JobStore
	results      store.ResultStore
	metrics      *progress.MetricsSink
	retention    time.Duration
	notifier     *Notifier
	newEvaluator EvaluatorFactory
	log          *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// ExecutorOption customizes an Executor
type ExecutorOption func(*Executor)

// WithResultStore persists finished results and enables resume
func WithResultStore(s store.ResultStore) ExecutorOption {
	return func(e *Executor) { e.results = s }
}

// WithMetrics records progress as Prometheus metrics
func WithMetrics(m *progress.MetricsSink) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithMetricsRetention sets how long a finished search's series stay exported.
// Zero or less drops them as soon as the job ends.
func WithMetricsRetention(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.retention = d }
}

// WithNotifier enables completion callbacks
func WithNotifier(n *Notifier) ExecutorOption {
	return func(e *Executor) { e.notifier = n }
}

// WithLogger sets the logger the executor and its searches write to. Defaults to logger.Default.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.log = l }
}

// WithEvaluatorFactory replaces evaluator.FromConfig
func WithEvaluatorFactory(f EvaluatorFactory) ExecutorOption {
	return func(e *Executor) { e.newEvaluator = f }
}

func NewExecutor(jobs *JobStore, opts ...ExecutorOption) *Executor {
	e := &Executor{
		jobs:         jobs,
		newEvaluator: evaluator.FromConfig,
		retention:    DefaultMetricsRetention,
		cancels:      make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Default
	}
	return e
}

// prepared is everything a job needs before its goroutine starts
type prepared struct {
	search  *search.Search
	release func() error
	log     *slog.Logger
}

// Start validates the job input and launches the search. Input errors fail
// the job immediately and are returned.
func (e *Executor) Start(id string) (Job, error) {
	job, ok := e.jobs.Get(id)
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	switch {
	case job.Status == JobRunning:
		return job, nil
	case job.Status.Terminal():
		return Job{}, fmt.Errorf("%w: %s", ErrJobTerminal, id)
	}

	p, err := e.prepare(job)
	if err != nil {
		if _, setErr := e.jobs.SetStatus(id, JobFailed, err.Error()); setErr != nil {
			e.log.Error("failed to set failed status", "search_id", id, "error", setErr)
		}
		return Job{}, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	// the cancel func is registered before the job shows as running so a
	// Stop that sees the running status always reaches it
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[id] = cancel
	e.mu.Unlock()

	updated, err := e.jobs.SetStatus(id, JobRunning, "")
	if err != nil {
		e.cleanup(id)
		p.close()
		return Job{}, err
	}

	e.wg.Add(1)
	go e.run(ctx, id, p)
	return updated, nil
}

func (e *Executor) prepare(job Job) (*prepared, error) {
	cfg, err := config.ParseSearchYAMLString(job.Input.SearchYAML)
	if err != nil {
		return nil, fmt.Errorf("invalid search: %w", err)
	}
	if job.Input.EvaluatorURL != "" {
		if cfg.Evaluator == nil {
			cfg.Evaluator = &config.Evaluator{Type: "http"}
		}
		cfg.Evaluator.URL = job.Input.EvaluatorURL
	}
	if cfg.Evaluator == nil || cfg.Evaluator.URL == "" {
		return nil, errors.New("an evaluator endpoint is required")
	}

	space, err := cfg.Space()
	if err != nil {
		return nil, err
	}
	opts, err := search.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if resume := cfg.Initial.Resume; resume != "" {
		if e.results == nil {
			return nil, fmt.Errorf("cannot resume %s: no result store configured", resume)
		}
		prior, err := e.results.Load(context.Background(), resume)
		if err != nil {
			return nil, fmt.Errorf("cannot resume %s: %w", resume, err)
		}
		opts.Prior = prior.History
	}

	collector, _ := e.jobs.Progress(job.ID)
	l := logger.ForSearch(e.log, job.ID)
	sinks := []progress.Sink{collector, progress.LogSink{Logger: l}}
	if e.metrics != nil {
		sinks = append(sinks, e.metrics)
	}
	opts.SearchID = job.ID
	opts.Sink = progress.Multi(sinks...)
	opts.Logger = l

	eval, release, err := e.newEvaluator(cfg.Evaluator)
	if err != nil {
		return nil, err
	}
	s, err := search.New(space, eval, opts)
	if err != nil {
		if release != nil {
			_ = release()
		}
		return nil, err
	}
	return &prepared{search: s, release: release, log: l}, nil
}

func (p *prepared) close() {
	if p.release == nil {
		return
	}
	if err := p.release(); err != nil {
		p.log.Warn("failed to release evaluator", "error", err)
	}
}

// Stop interrupts a running job. The search finishes its current evaluation
// and the job ends as stopped with the partial result. Pending jobs stop at once.
func (e *Executor) Stop(id string) (Job, error) {
	job, ok := e.jobs.Get(id)
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if job.Status == JobPending {
		return e.jobs.SetStatus(id, JobStopped, "")
	}

	e.mu.Lock()
	cancel, ok := e.cancels[id]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return job, nil
}

// Wait blocks until every running job has finished
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Shutdown stops every running job and waits for them or for ctx
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	for _, cancel := range e.cancels {
		cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) cleanup(id string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[id]; ok {
		cancel()
		delete(e.cancels, id)
	}
	e.mu.Unlock()
}

func (e *Executor) run(ctx context.Context, id string, p *prepared) {
	defer e.wg.Done()
	defer e.cleanup(id)
	defer p.close()

	log := e.log.With("search_id", id)
	log.Info("search job started")
	result, err := p.search.Run(ctx)

	var job Job
	if err != nil {
		log.Error("search job failed", "error", err)
		job, _ = e.jobs.Finish(id, JobFailed, nil, err.Error())
	} else {
		status := JobCompleted
		if result.Status == models.StatusStoppedInterrupted {
			status = JobStopped
		}
		job, _ = e.jobs.Finish(id, status, result, "")
		if e.results != nil {
			if err := e.results.Save(context.Background(), result); err != nil {
				log.Error("failed to save search result", "error", err)
			}
		}
		attrs := []any{"status", result.Status, "iterations", result.Iterations, "seed", result.Seed}
		if result.Best != nil {
			attrs = append(attrs, "best", result.Best.Mean)
		}
		log.Info("search job finished", attrs...)
	}

	e.forgetMetrics(id)
	if e.notifier != nil {
		e.notifier.Notify(job)
	}
}

// forgetMetrics drops a finished job's series once the retention period ends
func (e *Executor) forgetMetrics(id string) {
	if e.metrics == nil {
		return
	}
	if e.retention <= 0 {
		e.metrics.Forget(id)
		return
	}
	time.AfterFunc(e.retention, func() { e.metrics.Forget(id) })
}
