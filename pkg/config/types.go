package config

import "time"

// Search is a search file: the parameter space, the strategy settings and
// the evaluator to call. Counts where zero is meaningful are pointers so an
// explicit 0 survives defaulting.
type Search struct {
	LogLevel         string      `yaml:"log_level"`
	Direction        string      `yaml:"direction"`
	Strategy         string      `yaml:"strategy"`
	MaxIterations    *int        `yaml:"max_iterations,omitempty"`
	NoImprove        int         `yaml:"no_improve"`
	Initial          *Initial    `yaml:"initial,omitempty"`
	Seed             int64       `yaml:"seed"`
	Bayes            *Bayes      `yaml:"bayes,omitempty"`
	Anneal           *Anneal     `yaml:"anneal,omitempty"`
	FailureThreshold *int        `yaml:"failure_threshold,omitempty"`
	Workers          int         `yaml:"workers,omitempty"`
	Evaluator        *Evaluator  `yaml:"evaluator,omitempty"`
	Parameters       []Parameter `yaml:"parameters"`
}

// Initial selects the initial design. Size and Grid are mutually exclusive;
// Resume names a stored search whose observations seed the new one.
type Initial struct {
	Size   int    `yaml:"size,omitempty"`
	Grid   *Grid  `yaml:"grid,omitempty"`
	Resume string `yaml:"resume,omitempty"`
}

// Grid is a full factorial design with Levels points per numeric parameter
type Grid struct {
	Levels int `yaml:"levels"`
}

// Bayes holds Gaussian-process search settings
type Bayes struct {
	Acquisition    string  `yaml:"acquisition"` // expected_improvement, confidence_bound, probability_of_improvement
	Tradeoff       float64 `yaml:"tradeoff"`
	Kappa          float64 `yaml:"kappa"`
	PoolSize       int     `yaml:"pool_size"`
	UncertainAfter int     `yaml:"uncertain_after"`
}

// Anneal holds simulated-annealing settings
type Anneal struct {
	Radius      []float64 `yaml:"radius"` // [min, max] in unit-cube distance
	Flip        *float64  `yaml:"flip,omitempty"`
	CoolingCoef float64   `yaml:"cooling_coef"`
	Restart     *int      `yaml:"restart,omitempty"` // 0 disables restarts
}

// Evaluator describes the remote performance evaluator
type Evaluator struct {
	Type       string            `yaml:"type"` // http or grpc
	URL        string            `yaml:"url"`
	Timeout    string            `yaml:"timeout,omitempty"`
	Retries    int               `yaml:"retries"`
	RatePerSec float64           `yaml:"rate_per_sec"`
	Headers    map[string]string `yaml:"headers,omitempty"`
}

// Parameter declares one dimension of the space. Range is on the
// transformed scale.
type Parameter struct {
	Name      string    `yaml:"name"`
	Type      string    `yaml:"type"`
	Range     []float64 `yaml:"range,omitempty"`
	Transform string    `yaml:"transform,omitempty"`
	Levels    []string  `yaml:"levels,omitempty"`
}

// IntPtr returns a pointer to v, for building a Search in code
func IntPtr(v int) *int {
	return &v
}

// GetTimeout parses the evaluator timeout. Empty means no timeout.
func (e *Evaluator) GetTimeout() (time.Duration, error) {
	if e.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(e.Timeout)
}
