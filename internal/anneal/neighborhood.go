// Package anneal holds the simulated-annealing pieces of the search:
// neighbor proposals around the last accepted configuration and the
// acceptance controller.
package anneal

import (
	"math"

	"github.com/GoSim-25-26J-441/tune-core/pkg/params"
	"github.com/GoSim-25-26J-441/tune-core/pkg/utils"
)

// duplicateTolerance is the unit-cube distance under which two
// configurations are treated as the same point
const duplicateTolerance = 1e-6

// Neighborhood generates candidates at a random distance in
// [RadiusMin, RadiusMax] from the current point in the unit cube.
// Categorical values switch to another level with probability FlipProb.
type Neighborhood struct {
	RadiusMin float64
	RadiusMax float64
	FlipProb  float64
	Tries     int
}

// DefaultNeighborhood returns the stock neighborhood
func DefaultNeighborhood() Neighborhood {
	return Neighborhood{RadiusMin: 0.05, RadiusMax: 0.15, FlipProb: 0.1, Tries: 500}
}

// Propose returns a neighbor of current. Points that leave the unit cube are
// dropped and the draw is repeated once when nothing survives; after that
// the midpoint between current and the space center is used. Candidates that
// match an observed configuration are skipped; if every candidate matches,
// the one farthest from the observed set is returned.
func (n Neighborhood) Propose(space *params.Space, current params.Configuration, observed []params.Configuration, rng *utils.RandSource) (params.Configuration, error) {
	origin, err := space.Encode(current)
	if err != nil {
		return params.Configuration{}, err
	}

	candidates := n.draw(space, origin, rng)
	if len(candidates) == 0 {
		candidates = n.draw(space, origin, rng)
	}
	if len(candidates) == 0 {
		candidates = [][]float64{midpoint(origin, space.Center(), space.CategoricalMask())}
	}

	seen := make([][]float64, 0, len(observed))
	for _, o := range observed {
		if u, err := space.Encode(o); err == nil {
			seen = append(seen, u)
		}
	}

	decoded := make([]params.Configuration, len(candidates))
	encoded := make([][]float64, len(candidates))
	for i, c := range candidates {
		decoded[i] = space.Decode(c)
		// re-encode so integer rounding and level snapping are accounted for
		encoded[i], _ = space.Encode(decoded[i])
	}

	farthest, farthestDist := 0, -1.0
	for i, u := range encoded {
		d := nearest(space, u, seen)
		if d > duplicateTolerance {
			return decoded[i], nil
		}
		if d > farthestDist {
			farthest, farthestDist = i, d
		}
	}
	return decoded[farthest], nil
}

// draw makes up to Tries perturbations of origin and keeps those inside the cube
func (n Neighborhood) draw(space *params.Space, origin []float64, rng *utils.RandSource) [][]float64 {
	tries := n.Tries
	if tries <= 0 {
		tries = 1
	}
	mask := space.CategoricalMask()
	out := make([][]float64, 0, tries)
	for t := 0; t < tries; t++ {
		dir := make([]float64, len(origin))
		norm := 0.0
		for i := range dir {
			if mask[i] {
				continue
			}
			dir[i] = rng.NormFloat64(0, 1)
			norm += dir[i] * dir[i]
		}
		norm = math.Sqrt(norm)
		radius := rng.UniformFloat64(n.RadiusMin, n.RadiusMax)

		point := make([]float64, len(origin))
		inside := true
		for i := range origin {
			if mask[i] {
				point[i] = n.flip(space.Param(i), origin[i], rng)
				continue
			}
			step := 0.0
			if norm > 0 {
				step = radius * dir[i] / norm
			}
			point[i] = origin[i] + step
			if point[i] < 0 || point[i] > 1 {
				inside = false
			}
		}
		if inside {
			out = append(out, point)
		}
	}
	return out
}

func (n Neighborhood) flip(p params.Parameter, u float64, rng *utils.RandSource) float64 {
	levels := len(p.Levels)
	if levels < 2 || !rng.BernoulliBool(n.FlipProb) {
		return u
	}
	cur := int(math.Round(u * float64(levels-1)))
	next := rng.Intn(levels - 1)
	if next >= cur {
		next++
	}
	return float64(next) / float64(levels-1)
}

// midpoint keeps categorical coordinates of a and halves the way to b elsewhere
func midpoint(a, b []float64, mask []bool) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		if mask[i] {
			out[i] = a[i]
			continue
		}
		out[i] = (a[i] + b[i]) / 2
	}
	return out
}

func nearest(space *params.Space, u []float64, seen [][]float64) float64 {
	d := math.Inf(1)
	for _, s := range seen {
		d = math.Min(d, space.Distance(u, s))
	}
	return d
}
