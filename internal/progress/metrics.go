package progress

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GoSim-25-26J-441/tune-core/pkg/models"
)

// Metric names exported by MetricsSink
const (
	MetricIterations = "tune_iterations_total"
	MetricBest       = "tune_best_metric"
	MetricLastMean   = "tune_last_metric"
	MetricFailures   = "tune_evaluation_failures_total"
	MetricRestarts   = "tune_restarts_total"
	MetricDegraded   = "tune_degraded_iterations_total"
	labelSearch      = "search_id"
	labelDecision    = "decision"
	unnamedSearchID  = "default"
)

// MetricsSink exports progress as Prometheus metrics
type MetricsSink struct {
	iterations *prometheus.CounterVec
	best       *prometheus.GaugeVec
	last       *prometheus.GaugeVec
	failures   *prometheus.CounterVec
	restarts   *prometheus.CounterVec
	degraded   *prometheus.CounterVec
}

// NewMetricsSink creates the collectors and registers them with reg. When the
// collectors are already registered, the existing ones are reused.
func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	s := &MetricsSink{
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricIterations,
			Help: "Evaluated configurations by decision.",
		}, []string{labelSearch, labelDecision}),
		best: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricBest,
			Help: "Best metric observed so far.",
		}, []string{labelSearch}),
		last: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricLastMean,
			Help: "Metric of the most recent evaluation.",
		}, []string{labelSearch}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricFailures,
			Help: "Evaluations that returned an error.",
		}, []string{labelSearch}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRestarts,
			Help: "Simulated-annealing restarts from the best configuration.",
		}, []string{labelSearch}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricDegraded,
			Help: "Iterations that fell back to space-filling proposals.",
		}, []string{labelSearch}),
	}

	var err error
	if s.iterations, err = register(reg, s.iterations); err != nil {
		return nil, err
	}
	if s.best, err = register(reg, s.best); err != nil {
		return nil, err
	}
	if s.last, err = register(reg, s.last); err != nil {
		return nil, err
	}
	if s.failures, err = register(reg, s.failures); err != nil {
		return nil, err
	}
	if s.restarts, err = register(reg, s.restarts); err != nil {
		return nil, err
	}
	if s.degraded, err = register(reg, s.degraded); err != nil {
		return nil, err
	}
	return s, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *MetricsSink) Record(rec models.ProgressRecord) {
	id := rec.SearchID
	if id == "" {
		id = unnamedSearchID
	}
	s.iterations.WithLabelValues(id, string(rec.Decision)).Inc()
	switch rec.Decision {
	case models.DecisionFailed:
		s.failures.WithLabelValues(id).Inc()
		return
	case models.DecisionRestart:
		s.restarts.WithLabelValues(id).Inc()
		return
	}
	s.best.WithLabelValues(id).Set(rec.Best)
	s.last.WithLabelValues(id).Set(rec.Mean)
	if rec.Degraded {
		s.degraded.WithLabelValues(id).Inc()
	}
}

// Forget drops the series of a finished search
func (s *MetricsSink) Forget(searchID string) {
	match := prometheus.Labels{labelSearch: searchID}
	s.iterations.DeletePartialMatch(match)
	s.best.DeletePartialMatch(match)
	s.last.DeletePartialMatch(match)
	s.failures.DeletePartialMatch(match)
	s.restarts.DeletePartialMatch(match)
	s.degraded.DeletePartialMatch(match)
}
