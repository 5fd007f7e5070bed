package params

import (
	"errors"
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/tune-core/pkg/utils"
)

// ErrInvalidSpace is returned for an empty or contradictory parameter declaration.
var ErrInvalidSpace = errors.New("invalid parameter space")

// ErrOutOfBounds is returned when a configuration value falls outside its declared range or level set.
var ErrOutOfBounds = errors.New("configuration out of bounds")

// boundsTolerance absorbs round-off from transform/inverse round trips
const boundsTolerance = 1e-9

// Type is the kind of a tuning parameter
type Type string

const (
	TypeDouble      Type = "double"
	TypeInteger     Type = "integer"
	TypeCategorical Type = "categorical"
)

// Transform maps a numeric parameter onto the scale its range is declared in
type Transform string

const (
	TransformIdentity Transform = "identity"
	TransformLog10    Transform = "log10"
	TransformLog2     Transform = "log2"
	TransformLn       Transform = "ln"
)

// Parameter declares one dimension of the search space.
// Lower and Upper are on the transformed scale (e.g. log10 units for a
// penalty), while configuration values are always on the natural scale.
type Parameter struct {
	Name      string
	Type      Type
	Lower     float64
	Upper     float64
	Levels    []string
	Transform Transform
}

// Double declares a continuous parameter
func Double(name string, lower, upper float64) Parameter {
	return Parameter{Name: name, Type: TypeDouble, Lower: lower, Upper: upper}
}

// Integer declares an integer-valued parameter
func Integer(name string, lower, upper float64) Parameter {
	return Parameter{Name: name, Type: TypeInteger, Lower: lower, Upper: upper}
}

// Categorical declares a parameter with a fixed set of levels
func Categorical(name string, levels ...string) Parameter {
	cp := make([]string, len(levels))
	copy(cp, levels)
	return Parameter{Name: name, Type: TypeCategorical, Levels: cp}
}

// WithTransform returns a copy of the parameter using the given transform
func (p Parameter) WithTransform(t Transform) Parameter {
	p.Transform = t
	return p
}

func (p Parameter) forward(v float64) float64 {
	switch p.Transform {
	case TransformLog10:
		return math.Log10(v)
	case TransformLog2:
		return math.Log2(v)
	case TransformLn:
		return math.Log(v)
	default:
		return v
	}
}

func (p Parameter) inverse(t float64) float64 {
	switch p.Transform {
	case TransformLog10:
		return math.Pow(10, t)
	case TransformLog2:
		return math.Exp2(t)
	case TransformLn:
		return math.Exp(t)
	default:
		return t
	}
}

// naturalBounds returns the range on the natural scale. Integer ranges are
// shrunk to the integers they contain.
func (p Parameter) naturalBounds() (float64, float64) {
	lo, hi := p.inverse(p.Lower), p.inverse(p.Upper)
	if p.Type == TypeInteger {
		lo = math.Ceil(lo - boundsTolerance)
		hi = math.Floor(hi + boundsTolerance)
	}
	return lo, hi
}

func (p Parameter) validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: parameter name cannot be empty", ErrInvalidSpace)
	}
	switch p.Type {
	case TypeCategorical:
		if len(p.Levels) == 0 {
			return fmt.Errorf("%w: parameter %s: at least one level must be declared", ErrInvalidSpace, p.Name)
		}
		seen := make(map[string]bool, len(p.Levels))
		for _, lvl := range p.Levels {
			if lvl == "" {
				return fmt.Errorf("%w: parameter %s: level cannot be empty", ErrInvalidSpace, p.Name)
			}
			if seen[lvl] {
				return fmt.Errorf("%w: parameter %s: duplicate level %s", ErrInvalidSpace, p.Name, lvl)
			}
			seen[lvl] = true
		}
		if p.Transform != "" && p.Transform != TransformIdentity {
			return fmt.Errorf("%w: parameter %s: categorical parameters cannot be transformed", ErrInvalidSpace, p.Name)
		}
	case TypeDouble, TypeInteger:
		if math.IsNaN(p.Lower) || math.IsNaN(p.Upper) || math.IsInf(p.Lower, 0) || math.IsInf(p.Upper, 0) {
			return fmt.Errorf("%w: parameter %s: bounds must be finite", ErrInvalidSpace, p.Name)
		}
		if p.Lower >= p.Upper {
			return fmt.Errorf("%w: parameter %s: lower bound %g must be below upper bound %g", ErrInvalidSpace, p.Name, p.Lower, p.Upper)
		}
		switch p.Transform {
		case "", TransformIdentity, TransformLog10, TransformLog2, TransformLn:
		default:
			return fmt.Errorf("%w: parameter %s: unknown transform %s", ErrInvalidSpace, p.Name, p.Transform)
		}
		if p.Type == TypeInteger {
			lo, hi := p.naturalBounds()
			if lo > hi {
				return fmt.Errorf("%w: parameter %s: range contains no integer", ErrInvalidSpace, p.Name)
			}
		}
	default:
		return fmt.Errorf("%w: parameter %s: unknown type %q", ErrInvalidSpace, p.Name, p.Type)
	}
	return nil
}

// Space is a validated, ordered set of parameters
type Space struct {
	params []Parameter
	index  map[string]int
}

// NewSpace validates the declaration and builds a Space
func NewSpace(ps ...Parameter) (*Space, error) {
	if len(ps) == 0 {
		return nil, fmt.Errorf("%w: at least one parameter must be declared", ErrInvalidSpace)
	}
	s := &Space{
		params: make([]Parameter, len(ps)),
		index:  make(map[string]int, len(ps)),
	}
	for i, p := range ps {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := s.index[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate parameter name: %s", ErrInvalidSpace, p.Name)
		}
		if p.Type == TypeCategorical {
			p.Levels = append([]string(nil), p.Levels...)
		}
		s.params[i] = p
		s.index[p.Name] = i
	}
	return s, nil
}

// Len returns the number of parameters
func (s *Space) Len() int {
	return len(s.params)
}

// Param returns the i-th parameter
func (s *Space) Param(i int) Parameter {
	return s.params[i]
}

// Names returns parameter names in declaration order
func (s *Space) Names() []string {
	names := make([]string, len(s.params))
	for i, p := range s.params {
		names[i] = p.Name
	}
	return names
}

// CategoricalMask marks which encoded dimensions are categorical
func (s *Space) CategoricalMask() []bool {
	mask := make([]bool, len(s.params))
	for i, p := range s.params {
		mask[i] = p.Type == TypeCategorical
	}
	return mask
}

// Center returns the unit-cube midpoint
func (s *Space) Center() []float64 {
	c := make([]float64, len(s.params))
	for i := range c {
		c[i] = 0.5
	}
	return c
}

// Contains reports whether every value of cfg lies within its declared bounds or level set
func (s *Space) Contains(cfg Configuration) error {
	if cfg.Len() != len(s.params) {
		return fmt.Errorf("%w: expected %d values, got %d", ErrOutOfBounds, len(s.params), cfg.Len())
	}
	for i, p := range s.params {
		if cfg.Name(i) != p.Name {
			return fmt.Errorf("%w: position %d: expected %s, got %s", ErrOutOfBounds, i, p.Name, cfg.Name(i))
		}
		v := cfg.Value(i)
		switch p.Type {
		case TypeCategorical:
			if levelIndex(p.Levels, v.Level) < 0 {
				return fmt.Errorf("%w: %s: unknown level %q", ErrOutOfBounds, p.Name, v.Level)
			}
		default:
			if v.IsLevel() || math.IsNaN(v.Num) {
				return fmt.Errorf("%w: %s: expected a number", ErrOutOfBounds, p.Name)
			}
			if p.Type == TypeInteger && v.Num != math.Trunc(v.Num) {
				return fmt.Errorf("%w: %s: %g is not an integer", ErrOutOfBounds, p.Name, v.Num)
			}
			if p.Transform != "" && p.Transform != TransformIdentity && v.Num <= 0 {
				return fmt.Errorf("%w: %s: %g is outside the transform domain", ErrOutOfBounds, p.Name, v.Num)
			}
			t := p.forward(v.Num)
			if t < p.Lower-boundsTolerance || t > p.Upper+boundsTolerance {
				return fmt.Errorf("%w: %s: %g not in [%g, %g]", ErrOutOfBounds, p.Name, t, p.Lower, p.Upper)
			}
		}
	}
	return nil
}

// Encode maps a configuration into the unit cube. Categorical values map to
// their level index scaled to [0, 1].
func (s *Space) Encode(cfg Configuration) ([]float64, error) {
	if err := s.Contains(cfg); err != nil {
		return nil, err
	}
	u := make([]float64, len(s.params))
	for i, p := range s.params {
		v := cfg.Value(i)
		if p.Type == TypeCategorical {
			if len(p.Levels) > 1 {
				u[i] = float64(levelIndex(p.Levels, v.Level)) / float64(len(p.Levels)-1)
			}
			continue
		}
		u[i] = clampUnit((p.forward(v.Num) - p.Lower) / (p.Upper - p.Lower))
	}
	return u, nil
}

// Decode maps a unit-cube point back to a configuration. Coordinates are
// clamped to [0, 1], integers are rounded, categorical indices snap to the
// nearest level, so the result always satisfies Contains.
func (s *Space) Decode(u []float64) Configuration {
	values := make([]Value, len(s.params))
	for i, p := range s.params {
		x := 0.5
		if i < len(u) {
			x = clampUnit(u[i])
		}
		switch p.Type {
		case TypeCategorical:
			idx := 0
			if len(p.Levels) > 1 {
				idx = int(math.Round(x * float64(len(p.Levels)-1)))
			}
			values[i] = LevelValue(p.Levels[idx])
		default:
			v := p.inverse(p.Lower + x*(p.Upper-p.Lower))
			lo, hi := p.naturalBounds()
			if p.Type == TypeInteger {
				v = math.Round(v)
			}
			values[i] = NumValue(utils.ClampFloat64(v, lo, hi))
		}
	}
	return Configuration{names: s.Names(), values: values}
}

// Distance is the Euclidean distance between two encoded points where a
// categorical mismatch counts as 1.
func (s *Space) Distance(a, b []float64) float64 {
	mask := s.CategoricalMask()
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		if i < len(mask) && mask[i] {
			if math.Abs(d) > boundsTolerance {
				d = 1
			} else {
				d = 0
			}
		}
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Configure builds a configuration from name/value pairs in space order.
// Values may be float64, int or string.
func (s *Space) Configure(values map[string]any) (Configuration, error) {
	out := make([]Value, len(s.params))
	for i, p := range s.params {
		raw, ok := values[p.Name]
		if !ok {
			return Configuration{}, fmt.Errorf("%w: missing value for %s", ErrOutOfBounds, p.Name)
		}
		v, err := toValue(raw)
		if err != nil {
			return Configuration{}, fmt.Errorf("%s: %w", p.Name, err)
		}
		out[i] = v
	}
	cfg := Configuration{names: s.Names(), values: out}
	if err := s.Contains(cfg); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

func toValue(raw any) (Value, error) {
	switch v := raw.(type) {
	case float64:
		return NumValue(v), nil
	case float32:
		return NumValue(float64(v)), nil
	case int:
		return NumValue(float64(v)), nil
	case int64:
		return NumValue(float64(v)), nil
	case string:
		return LevelValue(v), nil
	case Value:
		return v, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

func levelIndex(levels []string, level string) int {
	for i, l := range levels {
		if l == level {
			return i
		}
	}
	return -1
}

func clampUnit(x float64) float64 {
	return utils.ClampFloat64(x, 0, 1)
}
