// Package gp implements the Gaussian-process surrogate used by Bayesian
// search. Inputs are unit-cube encoded configurations; outputs are the
// predicted mean and variance of the metric.
//
// Fitting factorizes a dense n×n covariance matrix, so cost grows as O(n³)
// in the number of observations. This is comfortable up to a few hundred
// observations; beyond that the surrogate needs an approximation that is
// not provided here.
package gp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNoData         = errors.New("gp: no observations")
	ErrDimension      = errors.New("gp: dimension mismatch")
	ErrIllConditioned = errors.New("gp: covariance matrix is not positive definite")
)

// DefaultLengthScales is the grid searched for the kernel length scale
var DefaultLengthScales = []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 1.5, 2.5}

// DefaultJitter is added to the covariance diagonal for numerical stability
const DefaultJitter = 1e-6

// Options tune a fit. The zero value uses the defaults above.
type Options struct {
	LengthScales []float64
	Jitter       float64
}

// Prediction is the posterior at one point, on the metric's own scale
type Prediction struct {
	Mean     float64
	Variance float64
}

// StdDev returns the posterior standard deviation
func (p Prediction) StdDev() float64 {
	return math.Sqrt(p.Variance)
}

// Model is a fitted Gaussian process. It is immutable after Fit and safe
// for concurrent Predict calls.
type Model struct {
	x           [][]float64
	mask        []bool
	lengthScale float64
	logLik      float64
	yMean       float64
	yScale      float64
	chol        *mat.Cholesky
	alpha       *mat.VecDense
}

// Fit conditions a GP on observations x (unit cube), y (metric) and stdErr
// (per-observation resampling standard error, used as diagonal noise).
// mask marks categorical dimensions, where any mismatch counts as distance 1.
// stdErr and mask may be nil.
func Fit(x [][]float64, y, stdErr []float64, mask []bool, opts Options) (*Model, error) {
	n := len(x)
	if n == 0 {
		return nil, ErrNoData
	}
	if len(y) != n || (stdErr != nil && len(stdErr) != n) {
		return nil, fmt.Errorf("%w: %d inputs, %d outputs, %d errors", ErrDimension, n, len(y), len(stdErr))
	}
	dim := len(x[0])
	for i := range x {
		if len(x[i]) != dim {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrDimension, i, len(x[i]), dim)
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return nil, fmt.Errorf("%w: non-finite output at row %d", ErrIllConditioned, i)
		}
	}
	if mask != nil && len(mask) != dim {
		return nil, fmt.Errorf("%w: mask has %d entries, expected %d", ErrDimension, len(mask), dim)
	}

	scales := opts.LengthScales
	if len(scales) == 0 {
		scales = DefaultLengthScales
	}
	jitter := opts.Jitter
	if jitter <= 0 {
		jitter = DefaultJitter
	}

	yMean, yScale := 0.0, 1.0
	if n > 1 {
		yMean, yScale = stat.MeanStdDev(y, nil)
		if !(yScale > 1e-12) {
			yScale = 1
		}
	} else {
		yMean = y[0]
	}
	ys := mat.NewVecDense(n, nil)
	noise := make([]float64, n)
	for i := range y {
		ys.SetVec(i, (y[i]-yMean)/yScale)
		noise[i] = jitter
		if stdErr != nil && stdErr[i] > 0 {
			se := stdErr[i] / yScale
			noise[i] += se * se
		}
	}

	xs := make([][]float64, n)
	for i := range x {
		xs[i] = append([]float64(nil), x[i]...)
	}

	var best *Model
	for _, ell := range scales {
		m, ok := fitScale(xs, ys, noise, mask, ell)
		if !ok {
			continue
		}
		if best == nil || m.logLik > best.logLik {
			best = m
		}
	}
	if best == nil {
		return nil, ErrIllConditioned
	}
	best.yMean = yMean
	best.yScale = yScale
	return best, nil
}

func fitScale(x [][]float64, y *mat.VecDense, noise []float64, mask []bool, ell float64) (*Model, bool) {
	n := len(x)
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		k.SetSym(i, i, 1+noise[i])
		for j := i + 1; j < n; j++ {
			k.SetSym(i, j, kernel(x[i], x[j], mask, ell))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(k); !ok {
		return nil, false
	}
	alpha := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(alpha, y); err != nil {
		return nil, false
	}
	logLik := -0.5*mat.Dot(y, alpha) - 0.5*chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)
	if math.IsNaN(logLik) {
		return nil, false
	}
	return &Model{
		x:           x,
		mask:        mask,
		lengthScale: ell,
		logLik:      logLik,
		chol:        &chol,
		alpha:       alpha,
	}, true
}

// kernel is the squared-exponential covariance with unit signal variance
func kernel(a, b []float64, mask []bool, ell float64) float64 {
	sq := 0.0
	for i := range a {
		d := a[i] - b[i]
		if mask != nil && mask[i] {
			if math.Abs(d) > 1e-9 {
				d = 1
			} else {
				d = 0
			}
		}
		sq += d * d
	}
	return math.Exp(-sq / (2 * ell * ell))
}

// Predict returns the posterior mean and variance at x. Variance is never negative.
func (m *Model) Predict(x []float64) Prediction {
	n := len(m.x)
	kStar := mat.NewVecDense(n, nil)
	for i := range m.x {
		kStar.SetVec(i, kernel(x, m.x[i], m.mask, m.lengthScale))
	}
	mean := mat.Dot(kStar, m.alpha)

	v := mat.NewVecDense(n, nil)
	variance := 1.0
	if err := m.chol.SolveVecTo(v, kStar); err == nil {
		variance -= mat.Dot(kStar, v)
	}
	if variance < 0 || math.IsNaN(variance) {
		variance = 0
	}
	return Prediction{
		Mean:     mean*m.yScale + m.yMean,
		Variance: variance * m.yScale * m.yScale,
	}
}

// PredictAll predicts every row of xs
func (m *Model) PredictAll(xs [][]float64) []Prediction {
	out := make([]Prediction, len(xs))
	for i, x := range xs {
		out[i] = m.Predict(x)
	}
	return out
}

// Len returns the number of observations the model was fit on
func (m *Model) Len() int {
	return len(m.x)
}

// LengthScale returns the selected kernel length scale
func (m *Model) LengthScale() float64 {
	return m.lengthScale
}

// LogLikelihood returns the log marginal likelihood of the standardized outputs
func (m *Model) LogLikelihood() float64 {
	return m.logLik
}
