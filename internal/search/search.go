// Package search runs an iterative hyperparameter search: an initial
// space-filling design followed by Bayesian optimization or simulated
// annealing until a stopping rule fires or the caller interrupts.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoSim-25-26J-441/tune-core/internal/design"
	"github.com/GoSim-25-26J-441/tune-core/internal/evaluator"
	"github.com/GoSim-25-26J-441/tune-core/internal/progress"
	"github.com/GoSim-25-26J-441/tune-core/pkg/logger"
	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
	"github.com/GoSim-25-26J-441/tune-core/pkg/utils"
)

var (
	ErrNilEvaluator     = errors.New("evaluator is required")
	ErrNoInitialResults = errors.New("no initial configuration evaluated successfully")
)

// maxProposalAttempts bounds regeneration of out-of-bounds proposals
// before a uniform random configuration is used instead
const maxProposalAttempts = 10

// proposer is one search strategy: where to look next and what to make of
// the result
type proposer interface {
	propose(ctx context.Context, st State) (cfg params.Configuration, degraded bool)
	decide(st State, obs models.Observation) (State, models.Decision)
	restart(st State) (State, bool)
}

// Search is a configured search over a parameter space
type Search struct {
	space *params.Space
	eval  evaluator.Evaluator
	opts  Options
	rules []StopRule
}

// New validates the inputs. All errors are returned before anything is evaluated.
func New(space *params.Space, eval evaluator.Evaluator, opts Options) (*Search, error) {
	if space == nil || space.Len() == 0 {
		return nil, fmt.Errorf("%w: no parameters declared", params.ErrInvalidSpace)
	}
	if eval == nil {
		return nil, ErrNilEvaluator
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	for i, cfg := range opts.Initial {
		if err := space.Contains(cfg); err != nil {
			return nil, fmt.Errorf("%w: initial configuration %d: %w", ErrInvalidOptions, i, err)
		}
	}
	if opts.InitialGrid > 0 {
		// surface oversized grids now rather than at Run
		if _, err := design.RegularGrid(space, opts.InitialGrid); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
	}
	if opts.SearchID == "" {
		opts.SearchID = utils.GenerateSearchID()
	}
	// resolved once so every Run and the stored result share it
	if opts.Seed == 0 {
		opts.Seed = utils.NewSeed()
	}
	if opts.Sink == nil {
		opts.Sink = progress.Discard
	}
	return &Search{
		space: space,
		eval:  eval,
		opts:  opts,
		rules: []StopRule{
			FailureRule{Threshold: opts.FailureThreshold},
			NoImprovementRule{Limit: opts.NoImprove},
			BudgetRule{MaxIterations: opts.MaxIterations},
		},
	}, nil
}

// ID returns the search ID carried by progress records and the result
func (s *Search) ID() string {
	return s.opts.SearchID
}

// Seed returns the seed the search draws from. A zero Options.Seed is
// replaced by a clock seed in New.
func (s *Search) Seed() int64 {
	return s.opts.Seed
}

// run holds what a single Run owns
type run struct {
	*Search
	rng      *utils.RandSource
	log      *slog.Logger
	proposer proposer
}

// Run executes the search. Cancelling ctx interrupts it at the next
// iteration boundary; the evaluation in flight is allowed to finish and the
// partial result is returned without error. Errors are only returned when
// the initial design produced no observation.
func (s *Search) Run(ctx context.Context) (*models.SearchResult, error) {
	r := &run{
		Search: s,
		rng:    utils.NewRandSource(s.opts.Seed),
		log:    logger.ForSearch(s.opts.Logger, s.opts.SearchID),
	}
	switch s.opts.Strategy {
	case StrategyAnnealing:
		r.proposer = newAnnealer(r)
	default:
		r.proposer = newBayes(r)
	}

	started := time.Now()
	r.log.Info("search starting",
		"strategy", s.opts.Strategy,
		"direction", s.opts.Direction,
		"max_iterations", s.opts.MaxIterations,
		"seed", s.opts.Seed,
		"parameters", s.space.Len())

	st, err := r.initialize(ctx)
	if err != nil {
		return nil, err
	}

	if st.Status != models.StatusStoppedInterrupted {
		st.Status = models.StatusIterating
		st = r.iterate(ctx, st)
	}

	result := r.buildResult(st, started)
	attrs := []any{"status", result.Status, "iterations", result.Iterations, "observations", len(result.History)}
	if result.Best != nil {
		attrs = append(attrs, "best", result.Best.Mean)
	}
	r.log.Info("search finished", attrs...)
	return result, nil
}

// initialize ingests prior observations and evaluates the initial design
func (r *run) initialize(ctx context.Context) (State, error) {
	st := State{Status: models.StatusInitializing, BestIndex: -1}
	seen := make(map[string]bool)

	for _, obs := range r.opts.Prior {
		if err := r.space.Contains(obs.Config); err != nil {
			r.log.Warn("skipping prior observation outside the space", "configuration", obs.Config.String(), "error", err)
			continue
		}
		if seen[obs.Config.Key()] {
			continue
		}
		seen[obs.Config.Key()] = true
		obs.Iteration = 0
		st, _ = st.observe(obs, r.opts.Direction)
	}

	initial, err := r.initialDesign()
	if err != nil {
		return st, err
	}

	evalCtx := context.WithoutCancel(ctx)
	for _, cfg := range initial {
		if seen[cfg.Key()] {
			continue
		}
		seen[cfg.Key()] = true
		if ctx.Err() != nil {
			r.log.Info("search interrupted during initial design", "observations", len(st.History))
			st.Status = models.StatusStoppedInterrupted
			st.Reason = "interrupted"
			return st, nil
		}

		est, err := r.evaluate(evalCtx, cfg)
		if err != nil {
			st.Failures++
			r.log.Warn("initial evaluation failed", "configuration", cfg.String(), "error", err)
			r.emit(st, cfg, models.DecisionFailed, models.Estimate{}, false, err)
			continue
		}
		st, _ = st.observe(models.Observation{Config: cfg, Mean: est.Mean, StdErr: est.StdErr}, r.opts.Direction)
		r.emit(st, cfg, models.DecisionInitial, est, false, nil)
	}

	best, ok := st.Best()
	if !ok {
		return st, fmt.Errorf("%w: %d failures", ErrNoInitialResults, st.Failures)
	}
	st.Current = best.Config
	st.CurrentMean = best.Mean
	return st, nil
}

func (r *run) initialDesign() ([]params.Configuration, error) {
	switch {
	case len(r.opts.Initial) > 0:
		return r.opts.Initial, nil
	case r.opts.InitialGrid > 0:
		return design.RegularGrid(r.space, r.opts.InitialGrid)
	default:
		return design.LatinHypercube(r.space, r.opts.InitialSize, r.rng), nil
	}
}

// iterate runs iterations until a stop rule fires or ctx is cancelled
func (r *run) iterate(ctx context.Context, st State) State {
	if next, stop := checkRules(st, r.rules); stop {
		return next
	}
	evalCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			r.log.Info("search interrupted", "iteration", st.Iteration)
			st.Status = models.StatusStoppedInterrupted
			st.Reason = "interrupted"
			return st
		}
		st = r.step(evalCtx, st)
		if next, stop := checkRules(st, r.rules); stop {
			return next
		}
	}
}

// step runs one iteration and returns the next state
func (r *run) step(ctx context.Context, st State) State {
	st.Iteration++
	cfg, degraded := r.propose(ctx, st)

	est, err := r.evaluate(ctx, cfg)
	if err != nil {
		st.Failures++
		st.ConsecutiveFailures++
		st.NoImprove++
		st.SinceBest++
		r.log.Warn("evaluation failed", "iteration", st.Iteration, "configuration", cfg.String(), "error", err)
		r.emit(st, cfg, models.DecisionFailed, models.Estimate{}, degraded, err)
		return r.maybeRestart(st)
	}
	st.ConsecutiveFailures = 0

	obs := models.Observation{Config: cfg, Mean: est.Mean, StdErr: est.StdErr, Iteration: st.Iteration}
	st, decision := r.proposer.decide(st, obs)
	if decision == models.DecisionNewBest {
		st.NoImprove = 0
		st.SinceBest = 0
	} else {
		st.NoImprove++
		st.SinceBest++
	}
	r.emit(st, cfg, decision, est, degraded, nil)
	return r.maybeRestart(st)
}

func (r *run) maybeRestart(st State) State {
	st, restarted := r.proposer.restart(st)
	if restarted {
		best, _ := st.Best()
		r.emit(st, best.Config, models.DecisionRestart, models.Estimate{Mean: best.Mean, StdErr: best.StdErr}, false, nil)
	}
	return st
}

// propose asks the strategy for a candidate and regenerates anything that
// falls outside the space
func (r *run) propose(ctx context.Context, st State) (params.Configuration, bool) {
	for attempt := 0; attempt < maxProposalAttempts; attempt++ {
		cfg, degraded := r.proposer.propose(ctx, st)
		err := r.space.Contains(cfg)
		if err == nil {
			return cfg, degraded
		}
		r.log.Debug("regenerating invalid proposal", "iteration", st.Iteration, "attempt", attempt+1, "error", err)
	}
	r.log.Warn("no valid proposal, using a random configuration", "iteration", st.Iteration)
	return design.Random(r.space, 1, r.rng)[0], true
}

func (r *run) evaluate(ctx context.Context, cfg params.Configuration) (models.Estimate, error) {
	est, err := r.eval.Evaluate(ctx, cfg)
	if err != nil {
		return models.Estimate{}, err
	}
	if err := evaluator.Validate(est); err != nil {
		return models.Estimate{}, err
	}
	return est, nil
}

func (r *run) emit(st State, cfg params.Configuration, decision models.Decision, est models.Estimate, degraded bool, err error) {
	rec := models.ProgressRecord{
		SearchID:  r.opts.SearchID,
		Iteration: st.Iteration,
		Config:    cfg,
		Decision:  decision,
		Mean:      est.Mean,
		StdErr:    est.StdErr,
		Degraded:  degraded,
		Timestamp: time.Now(),
	}
	if best, ok := st.Best(); ok {
		rec.Best = best.Mean
	}
	if err != nil {
		rec.Error = err.Error()
	}
	r.opts.Sink.Record(rec)
}

func (r *run) buildResult(st State, started time.Time) *models.SearchResult {
	history := make([]models.Observation, len(st.History))
	copy(history, st.History)

	result := &models.SearchResult{
		ID:          r.opts.SearchID,
		Status:      st.Status,
		Direction:   r.opts.Direction,
		Seed:        r.opts.Seed,
		History:     history,
		Iterations:  st.Iteration,
		Restarts:    st.Restarts,
		Failures:    st.Failures,
		FailureStop: st.FailureStop,
		Reason:      st.Reason,
		StartedAt:   started,
		EndedAt:     time.Now(),
	}
	if best, ok := st.Best(); ok {
		result.Best = &best
	}
	return result
}
