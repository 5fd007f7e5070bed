// Package design generates space-filling sets of configurations: the
// initial design of a search and the candidate pools scored by the
// acquisition function.
package design

import (
	"errors"
	"fmt"

	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
	"github.com/GoSim-25-26J-441/tune-core/pkg/utils"
)

// MaxGridSize bounds the number of points RegularGrid will enumerate
const MaxGridSize = 100_000

var ErrGridTooLarge = errors.New("grid design too large")

// LatinHypercube draws n configurations so that every numeric dimension has
// exactly one point per 1/n stratum. Strata are shuffled per dimension and
// points are jittered inside their stratum. Categorical dimensions cycle
// through their levels in shuffled order.
func LatinHypercube(space *params.Space, n int, rng *utils.RandSource) []params.Configuration {
	if n <= 0 {
		return nil
	}
	units := make([][]float64, n)
	for i := range units {
		units[i] = make([]float64, space.Len())
	}
	for d := 0; d < space.Len(); d++ {
		p := space.Param(d)
		perm := rng.Perm(n)
		for i := 0; i < n; i++ {
			if p.Type == params.TypeCategorical {
				units[i][d] = levelUnit(perm[i]%len(p.Levels), len(p.Levels))
				continue
			}
			units[i][d] = (float64(perm[i]) + rng.Float64()) / float64(n)
		}
	}
	return decodeAll(space, units)
}

// Random draws n configurations uniformly from the unit cube
func Random(space *params.Space, n int, rng *utils.RandSource) []params.Configuration {
	if n <= 0 {
		return nil
	}
	units := make([][]float64, n)
	for i := range units {
		u := make([]float64, space.Len())
		for d := range u {
			p := space.Param(d)
			if p.Type == params.TypeCategorical {
				u[d] = levelUnit(rng.Intn(len(p.Levels)), len(p.Levels))
				continue
			}
			u[d] = rng.Float64()
		}
		units[i] = u
	}
	return decodeAll(space, units)
}

// RegularGrid enumerates the full factorial design with levels evenly spaced
// values per numeric parameter and every level of each categorical one.
// Integer parameters with fewer distinct values than levels collapse, so
// duplicates are removed. The first parameter varies slowest.
func RegularGrid(space *params.Space, levels int) ([]params.Configuration, error) {
	if levels < 2 {
		return nil, fmt.Errorf("grid needs at least 2 levels per parameter, got %d", levels)
	}
	axes := make([][]float64, space.Len())
	total := 1
	for d := range axes {
		p := space.Param(d)
		if p.Type == params.TypeCategorical {
			for k := range p.Levels {
				axes[d] = append(axes[d], levelUnit(k, len(p.Levels)))
			}
		} else {
			for k := 0; k < levels; k++ {
				axes[d] = append(axes[d], float64(k)/float64(levels-1))
			}
		}
		total *= len(axes[d])
		if total > MaxGridSize {
			return nil, fmt.Errorf("%w: more than %d points", ErrGridTooLarge, MaxGridSize)
		}
	}

	units := make([][]float64, 0, total)
	idx := make([]int, len(axes))
	for {
		u := make([]float64, len(axes))
		for d := range axes {
			u[d] = axes[d][idx[d]]
		}
		units = append(units, u)

		d := len(axes) - 1
		for d >= 0 {
			idx[d]++
			if idx[d] < len(axes[d]) {
				break
			}
			idx[d] = 0
			d--
		}
		if d < 0 {
			break
		}
	}
	return Unique(decodeAll(space, units)), nil
}

// Unique drops repeated configurations, keeping the first occurrence
func Unique(cfgs []params.Configuration) []params.Configuration {
	seen := make(map[string]bool, len(cfgs))
	out := cfgs[:0:0]
	for _, c := range cfgs {
		k := c.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

func decodeAll(space *params.Space, units [][]float64) []params.Configuration {
	out := make([]params.Configuration, len(units))
	for i, u := range units {
		out[i] = space.Decode(u)
	}
	return out
}

func levelUnit(k, n int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(k) / float64(n-1)
}
