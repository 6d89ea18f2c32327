// Copyright 2025 Zintix Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package basis builds the monotone (I-spline) function basis used by
// the spline fitter and evaluator.
//
// An I-spline basis is derived from an ordinary B-spline basis by a
// reverse cumulative sum over the basis functions; each resulting
// column rises monotonically from 0 at XMin to 1 at XMax. Fitting a
// curve as intercept + sum of non-negative coefficients over these
// columns therefore guarantees a non-decreasing curve.
//
// Reference: Ramsay, J.O. (1988). Monotone Regression Splines in Action.
package basis

import (
	"gonum.org/v1/gonum/mat"

	"github.com/zintix-labs/monocal/errs"
)

// Config describes one monotone basis over a bounded domain. It is
// immutable once a curve is fitted against it: the same Config must
// yield byte-identical knot placement on every call, because the basis
// is rebuilt at fit time, anchor time, evaluation time and
// monotonicity-check time.
type Config struct {
	NBasis int
	Degree int
	XMin   float64
	XMax   float64
}

// Valid checks the structural constraints of a Config.
func (c Config) Valid() error {
	if c.NBasis < 1 {
		return errs.Warnf("basis config err: n_basis must be at least 1, got %d", c.NBasis)
	}
	if c.Degree < 0 {
		return errs.Warnf("basis config err: degree must be non-negative, got %d", c.Degree)
	}
	if !(c.XMax > c.XMin) {
		return errs.Warnf("basis config err: x_max must be greater than x_min, got [%g,%g]", c.XMin, c.XMax)
	}
	return nil
}

// Knots returns the knot sequence of the underlying B-spline basis
// (the one with NBasis+1 functions that the I-spline construction
// consumes). This is the exact sequence persisted with fitted curves.
func (c Config) Knots() []float64 {
	return knotVector(c.NBasis+1, c.Degree, c.XMin, c.XMax)
}

// knotVector builds the deterministic knot sequence for a B-spline
// basis of nb functions: degree+1 repeated knots at each boundary and
// evenly spaced interior knots (count clamped at zero).
func knotVector(nb, degree int, xMin, xMax float64) []float64 {
	nInterior := nb - degree - 1
	if nInterior < 0 {
		nInterior = 0
	}
	knots := make([]float64, 0, 2*(degree+1)+nInterior)
	for i := 0; i <= degree; i++ {
		knots = append(knots, xMin)
	}
	// Interior knots are linspace(xMin, xMax, nInterior+2) without the
	// endpoints.
	step := (xMax - xMin) / float64(nInterior+1)
	for i := 1; i <= nInterior; i++ {
		knots = append(knots, xMin+float64(i)*step)
	}
	for i := 0; i <= degree; i++ {
		knots = append(knots, xMax)
	}
	return knots
}

// BSplineMatrix evaluates a B-spline basis of nb functions of the given
// degree over [xMin, xMax] at every point in x. Row i holds the nb
// basis values at x[i]. Points outside the domain are extrapolated with
// the polynomial piece of the nearest boundary interval.
func BSplineMatrix(x []float64, nb, degree int, xMin, xMax float64) *mat.Dense {
	knots := knotVector(nb, degree, xMin, xMax)
	// With the interior count clamped at zero the knot vector defines
	// degree+1 functions; nb may ask for fewer (n_basis <= degree), in
	// which case only the first nb are reported.
	nbFull := len(knots) - degree - 1

	out := mat.NewDense(len(x), nb, nil)
	vals := make([]float64, degree+1)
	left := make([]float64, degree+1)
	right := make([]float64, degree+1)

	for i, xi := range x {
		span := findSpan(knots, degree, nbFull, xi)
		basisFuncs(knots, degree, span, xi, vals, left, right)
		for r := 0; r <= degree; r++ {
			col := span - degree + r
			if col >= 0 && col < nb {
				out.Set(i, col, vals[r])
			}
		}
	}
	return out
}

// findSpan locates the knot span containing xi, clamped to the valid
// range so that points outside [xMin, xMax] reuse the boundary span and
// the triangular recursion extrapolates its polynomial.
func findSpan(knots []float64, degree, nbFull int, xi float64) int {
	lo, hi := degree, nbFull // valid spans are [degree, nbFull-1]
	if xi >= knots[hi] {
		return hi - 1
	}
	if xi <= knots[lo] {
		return lo
	}
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if xi < knots[mid] {
			hi = mid
		} else {
			lo = mid
		}
	}
	return lo
}

// basisFuncs runs the triangular Cox-de Boor scheme for all degree+1
// basis functions that are non-zero on the given span. Zero-width
// denominators (repeated knots) contribute zero rather than faulting.
func basisFuncs(knots []float64, degree, span int, xi float64, vals, left, right []float64) {
	vals[0] = 1
	for j := 1; j <= degree; j++ {
		left[j] = xi - knots[span+1-j]
		right[j] = knots[span+j] - xi
		saved := 0.0
		for r := 0; r < j; r++ {
			den := right[r+1] + left[j-r]
			var temp float64
			if den != 0 {
				temp = vals[r] / den
			}
			vals[r] = saved + right[r+1]*temp
			saved = left[j-r] * temp
		}
		vals[j] = saved
	}
}

// ISplineMatrix evaluates the monotone basis of cfg at every point in
// x. Row i holds cfg.NBasis values, each in [0,1] inside the domain and
// non-decreasing along increasing x. The returned knot sequence is the
// one of the underlying B-spline basis.
//
// Construction: build a B-spline basis with NBasis+1 functions, drop
// the first, reverse-cumulative-sum the rest (turning local bumps into
// global ramps), then normalize every column by its own value at XMax
// so each ramp ends at exactly 1. A column that is zero at XMax divides
// by 1 instead, yielding a flat zero-contribution function rather than
// a fault.
func ISplineMatrix(x []float64, cfg Config) (*mat.Dense, []float64) {
	knots := cfg.Knots()
	norm := isplineRow([]float64{cfg.XMax}, cfg)
	for j, v := range norm {
		if v == 0 {
			norm[j] = 1
		}
	}

	raw := isplineRows(x, cfg)
	out := mat.NewDense(len(x), cfg.NBasis, nil)
	for i := range x {
		for j := 0; j < cfg.NBasis; j++ {
			out.Set(i, j, raw.At(i, j)/norm[j])
		}
	}
	return out, knots
}

// isplineRows builds the unnormalized I-spline values for all points.
func isplineRows(x []float64, cfg Config) *mat.Dense {
	b := BSplineMatrix(x, cfg.NBasis+1, cfg.Degree, cfg.XMin, cfg.XMax)
	out := mat.NewDense(len(x), cfg.NBasis, nil)
	for i := range x {
		// Drop column 0, then sum from the highest-index function down:
		// ispline[j] = sum_{k >= j} bspline[k+1].
		acc := 0.0
		for j := cfg.NBasis - 1; j >= 0; j-- {
			acc += b.At(i, j+1)
			out.Set(i, j, acc)
		}
	}
	return out
}

// isplineRow is the single-point helper used for normalization.
func isplineRow(x []float64, cfg Config) []float64 {
	m := isplineRows(x, cfg)
	row := make([]float64, cfg.NBasis)
	for j := 0; j < cfg.NBasis; j++ {
		row[j] = m.At(0, j)
	}
	return row
}
