package config

import (
	"fmt"
	"os"

	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
)

const (
	DefaultMaxIterations    = 25
	DefaultNoImprove        = 10
	DefaultInitialSize      = 5
	DefaultPoolSize         = 5000
	DefaultFailureThreshold = 3
	DefaultCoolingCoef      = 0.02
	DefaultRestart          = 8
	DefaultFlip             = 0.1
	DefaultRadiusMin        = 0.05
	DefaultRadiusMax        = 0.15
	DefaultKappa            = 0.1
)

// LoadSearch loads and parses a search file
func LoadSearch(path string) (*Search, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read search file %s: %w", path, err)
	}
	s, err := ParseSearchYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search file %s: %w", path, err)
	}
	return s, nil
}

func applyDefaults(s *Search) {
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	if s.Direction == "" {
		s.Direction = "maximize"
	}
	if s.Strategy == "" {
		s.Strategy = "bayesian"
	}
	if s.MaxIterations == nil {
		s.MaxIterations = IntPtr(DefaultMaxIterations)
	}
	if s.NoImprove == 0 {
		s.NoImprove = DefaultNoImprove
	}
	if s.FailureThreshold == nil {
		s.FailureThreshold = IntPtr(DefaultFailureThreshold)
	}
	if s.Initial == nil {
		s.Initial = &Initial{}
	}
	if s.Initial.Size == 0 && s.Initial.Grid == nil && s.Initial.Resume == "" {
		s.Initial.Size = DefaultInitialSize
	}
	if s.Bayes == nil {
		s.Bayes = &Bayes{}
	}
	if s.Bayes.Acquisition == "" {
		s.Bayes.Acquisition = "expected_improvement"
	}
	if s.Bayes.PoolSize == 0 {
		s.Bayes.PoolSize = DefaultPoolSize
	}
	if s.Bayes.Kappa == 0 {
		s.Bayes.Kappa = DefaultKappa
	}
	if s.Anneal == nil {
		s.Anneal = &Anneal{}
	}
	if len(s.Anneal.Radius) == 0 {
		s.Anneal.Radius = []float64{DefaultRadiusMin, DefaultRadiusMax}
	}
	if s.Anneal.Flip == nil {
		flip := DefaultFlip
		s.Anneal.Flip = &flip
	}
	if s.Anneal.CoolingCoef == 0 {
		s.Anneal.CoolingCoef = DefaultCoolingCoef
	}
	if s.Anneal.Restart == nil {
		s.Anneal.Restart = IntPtr(DefaultRestart)
	}
}

// validateSearch performs validation on the search file
func validateSearch(s *Search) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[s.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", s.LogLevel)
	}
	if s.Direction != "maximize" && s.Direction != "minimize" {
		return fmt.Errorf("invalid direction: %s (must be maximize or minimize)", s.Direction)
	}
	if s.Strategy != "bayesian" && s.Strategy != "annealing" {
		return fmt.Errorf("invalid strategy: %s (must be bayesian or annealing)", s.Strategy)
	}
	if s.MaxIterations != nil && *s.MaxIterations < 0 {
		return fmt.Errorf("max_iterations cannot be negative, got %d", *s.MaxIterations)
	}
	if s.NoImprove < 0 {
		return fmt.Errorf("no_improve cannot be negative, got %d", s.NoImprove)
	}
	if s.FailureThreshold != nil && *s.FailureThreshold < 0 {
		return fmt.Errorf("failure_threshold cannot be negative, got %d", *s.FailureThreshold)
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers cannot be negative, got %d", s.Workers)
	}

	if err := validateInitial(s.Initial); err != nil {
		return fmt.Errorf("initial validation failed: %w", err)
	}
	if err := validateBayes(s.Bayes); err != nil {
		return fmt.Errorf("bayes validation failed: %w", err)
	}
	if err := validateAnneal(s.Anneal); err != nil {
		return fmt.Errorf("anneal validation failed: %w", err)
	}
	if s.Evaluator != nil {
		if err := validateEvaluator(s.Evaluator); err != nil {
			return fmt.Errorf("evaluator validation failed: %w", err)
		}
	}
	if _, err := s.Space(); err != nil {
		return fmt.Errorf("parameters validation failed: %w", err)
	}
	return nil
}

func validateInitial(in *Initial) error {
	if in.Size < 0 {
		return fmt.Errorf("size cannot be negative, got %d", in.Size)
	}
	if in.Size > 0 && in.Grid != nil {
		return fmt.Errorf("size and grid are mutually exclusive")
	}
	if in.Grid != nil && in.Grid.Levels < 2 {
		return fmt.Errorf("grid levels must be at least 2, got %d", in.Grid.Levels)
	}
	return nil
}

func validateBayes(b *Bayes) error {
	validAcquisitions := map[string]bool{
		"expected_improvement":       true,
		"confidence_bound":           true,
		"probability_of_improvement": true,
	}
	if !validAcquisitions[b.Acquisition] {
		return fmt.Errorf("invalid acquisition: %s (must be expected_improvement, confidence_bound, or probability_of_improvement)", b.Acquisition)
	}
	if b.PoolSize < 1 {
		return fmt.Errorf("pool_size must be positive, got %d", b.PoolSize)
	}
	if b.Kappa < 0 {
		return fmt.Errorf("kappa cannot be negative, got %f", b.Kappa)
	}
	if b.Tradeoff < 0 {
		return fmt.Errorf("tradeoff cannot be negative, got %f", b.Tradeoff)
	}
	if b.UncertainAfter < 0 {
		return fmt.Errorf("uncertain_after cannot be negative, got %d", b.UncertainAfter)
	}
	return nil
}

func validateAnneal(a *Anneal) error {
	if len(a.Radius) != 2 {
		return fmt.Errorf("radius must have exactly two values, got %d", len(a.Radius))
	}
	if a.Radius[0] <= 0 || a.Radius[0] > a.Radius[1] || a.Radius[1] > 1 {
		return fmt.Errorf("radius must satisfy 0 < min <= max <= 1, got %v", a.Radius)
	}
	if *a.Flip < 0 || *a.Flip > 1 {
		return fmt.Errorf("flip must be between 0 and 1, got %f", *a.Flip)
	}
	if a.CoolingCoef <= 0 {
		return fmt.Errorf("cooling_coef must be positive, got %f", a.CoolingCoef)
	}
	if a.Restart != nil && *a.Restart < 0 {
		return fmt.Errorf("restart cannot be negative, got %d", *a.Restart)
	}
	return nil
}

func validateEvaluator(e *Evaluator) error {
	if e.Type != "http" && e.Type != "grpc" {
		return fmt.Errorf("invalid type: %s (must be http or grpc)", e.Type)
	}
	if e.URL == "" {
		return fmt.Errorf("url cannot be empty")
	}
	if e.Retries < 0 {
		return fmt.Errorf("retries cannot be negative, got %d", e.Retries)
	}
	if e.RatePerSec < 0 {
		return fmt.Errorf("rate_per_sec cannot be negative, got %f", e.RatePerSec)
	}
	if _, err := e.GetTimeout(); err != nil {
		return fmt.Errorf("invalid timeout %s: %w", e.Timeout, err)
	}
	return nil
}

// Space builds the parameter space declared by the search file
func (s *Search) Space() (*params.Space, error) {
	ps := make([]params.Parameter, 0, len(s.Parameters))
	for i, p := range s.Parameters {
		switch params.Type(p.Type) {
		case params.TypeCategorical:
			ps = append(ps, params.Categorical(p.Name, p.Levels...))
		case params.TypeDouble, params.TypeInteger:
			if len(p.Range) != 2 {
				return nil, fmt.Errorf("%w: parameter %d (%s): range must have exactly two values", params.ErrInvalidSpace, i, p.Name)
			}
			param := params.Parameter{Name: p.Name, Type: params.Type(p.Type), Lower: p.Range[0], Upper: p.Range[1]}
			if p.Transform != "" {
				param = param.WithTransform(params.Transform(p.Transform))
			}
			ps = append(ps, param)
		default:
			return nil, fmt.Errorf("%w: parameter %d (%s): unknown type %q", params.ErrInvalidSpace, i, p.Name, p.Type)
		}
	}
	return params.NewSpace(ps...)
}
