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

// Package spline fits and evaluates monotone non-decreasing curves on
// the I-spline basis from package basis.
//
// Monotonicity is not enforced by constrained optimization: each basis
// coefficient is produced from an unconstrained real parameter through
// softplus, so every coefficient is strictly positive and the curve is
// non-decreasing by construction. The search itself stays unconstrained
// L-BFGS.
package spline

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/zintix-labs/monocal/basis"
	"github.com/zintix-labs/monocal/errs"
	"github.com/zintix-labs/monocal/sdk/core"
	"github.com/zintix-labs/monocal/sdk/solve"
)

const (
	// monoTol is the numerical slack allowed when verifying that a
	// fitted curve never decreases on the dense check grid.
	monoTol = -1e-10
	// monoGrid is the size of that check grid.
	monoGrid = 200
	// perturbStd scales the Gaussian perturbation applied to restart
	// initializations.
	perturbStd = 0.5
)

// Params are the immutable parameters of one fitted curve. Field names
// are stable: the downstream probability model binds to them by name.
type Params struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	NBasis       int       `json:"n_basis"`
	Degree       int       `json:"degree"`
	XMin         float64   `json:"x_min"`
	XMax         float64   `json:"x_max"`
	Knots        []float64 `json:"knots"`
}

// Config returns the basis configuration embedded in the parameters.
func (p *Params) Config() basis.Config {
	return basis.Config{NBasis: p.NBasis, Degree: p.Degree, XMin: p.XMin, XMax: p.XMax}
}

// FitInfo carries the diagnostics of one fit. Produced once, never
// mutated afterward.
type FitInfo struct {
	RMSE        float64 `json:"rmse"`
	R2          float64 `json:"r2"`
	IsMonotone  bool    `json:"is_monotone"`
	Converged   bool    `json:"converged"`
	NIterations int     `json:"n_iterations"`
}

// Anchor forces the fitted curve through an exact point: the intercept
// stops being a free parameter and is solved in closed form on every
// objective evaluation.
type Anchor struct {
	X float64
	Y float64
}

// Options control one fit. Use NewOptions for the defaults and override
// fields as needed. XMin/XMax left nil default to the observed range of
// the sample points.
type Options struct {
	NBasis     int
	Degree     int
	Smoothness float64
	Weights    []float64
	Anchor     *Anchor
	XMin       *float64
	XMax       *float64
	Restarts   int
	MaxIter    int
}

// NewOptions returns the default fit options: 6 cubic basis functions,
// light smoothing, three optimizer starts.
func NewOptions() Options {
	return Options{
		NBasis:     6,
		Degree:     3,
		Smoothness: 0.001,
		Restarts:   3,
		MaxIter:    2000,
	}
}

// Fit finds the monotone curve minimizing the penalized weighted
// squared error against (x, y). Weights default to uniform and are
// renormalized to sum to 1. The optimizer runs from the all-zero
// initialization plus Restarts-1 Gaussian-perturbed ones drawn from c;
// the run with the lowest objective wins.
//
// Optimizer non-convergence is not a hard failure: the best parameters
// found are returned with Converged=false so callers can warn instead
// of aborting.
func Fit(x, y []float64, opt Options, c *core.Core) (*Params, *FitInfo, error) {
	if len(x) == 0 {
		return nil, nil, errs.NewWarn("fit err: sample points required")
	}
	if len(x) != len(y) {
		return nil, nil, errs.Warnf("fit err: x and y length mismatch (%d vs %d)", len(x), len(y))
	}
	if c == nil {
		return nil, nil, errs.NewWarn("fit err: core is required")
	}
	w, err := normalizeWeights(opt.Weights, len(x))
	if err != nil {
		return nil, nil, err
	}

	xMin, xMax := floats.Min(x), floats.Max(x)
	if opt.XMin != nil {
		xMin = *opt.XMin
	}
	if opt.XMax != nil {
		xMax = *opt.XMax
	}
	cfg := basis.Config{NBasis: opt.NBasis, Degree: opt.Degree, XMin: xMin, XMax: xMax}
	if err := cfg.Valid(); err != nil {
		return nil, nil, err
	}

	b, knots := basis.ISplineMatrix(x, cfg)
	var bAnchor []float64
	if opt.Anchor != nil {
		m, _ := basis.ISplineMatrix([]float64{opt.Anchor.X}, cfg)
		bAnchor = m.RawRowView(0)
	}

	nb := opt.NBasis
	coef := make([]float64, nb)
	obj := func(v []float64) float64 {
		softplusInto(coef, v[:nb])
		b0 := intercept(v, coef, bAnchor, opt.Anchor, nb)
		sse := 0.0
		for i := range x {
			pred := b0 + floats.Dot(b.RawRowView(i), coef)
			d := y[i] - pred
			sse += w[i] * d * d
		}
		smooth := 0.0
		for j := 0; j+1 < nb; j++ {
			d := coef[j+1] - coef[j]
			smooth += d * d
		}
		return sse + opt.Smoothness*smooth
	}

	// Free parameters: the raw coefficient vector, plus the intercept
	// when no anchor pins it down.
	dim := nb
	if opt.Anchor == nil {
		dim++
	}
	x0 := make([]float64, dim)
	if opt.Anchor == nil {
		x0[nb] = stat.Mean(y, nil)
	}

	restarts := opt.Restarts
	if restarts < 1 {
		restarts = 1
	}
	maxIter := opt.MaxIter
	if maxIter <= 0 {
		maxIter = 2000
	}
	var best solve.Result
	bestF := math.Inf(1)
	trial := make([]float64, dim)
	for t := 0; t < restarts; t++ {
		copy(trial, x0)
		if t > 0 {
			for i := range trial {
				trial[i] += c.NormFloat64() * perturbStd
			}
		}
		res := solve.Minimize(obj, trial, maxIter)
		if res.F < bestF {
			bestF = res.F
			best = res
		}
	}

	fitted := make([]float64, nb)
	softplusInto(fitted, best.X[:nb])
	b0 := intercept(best.X, fitted, bAnchor, opt.Anchor, nb)

	params := &Params{
		Coefficients: fitted,
		Intercept:    b0,
		NBasis:       nb,
		Degree:       opt.Degree,
		XMin:         xMin,
		XMax:         xMax,
		Knots:        knots,
	}
	info := diagnostics(x, y, w, b, params, best)
	return params, info, nil
}

// Evaluate reproduces the fitted curve at the given points. It is pure:
// the identical basis construction used at fit time is rebuilt from the
// configuration embedded in params, so evaluation outside [XMin, XMax]
// extrapolates the boundary polynomial (without the monotonicity
// guarantee beyond the fitted domain).
func Evaluate(x []float64, params *Params) []float64 {
	b, _ := basis.ISplineMatrix(x, params.Config())
	out := make([]float64, len(x))
	for i := range x {
		out[i] = params.Intercept + floats.Dot(b.RawRowView(i), params.Coefficients)
	}
	return out
}

// EvaluateAt is the single-point convenience form of Evaluate.
func EvaluateAt(x float64, params *Params) float64 {
	return Evaluate([]float64{x}, params)[0]
}

// intercept resolves the curve intercept: closed form from the anchor
// when one is given, the trailing free parameter otherwise.
func intercept(v, coef, bAnchor []float64, anchor *Anchor, nb int) float64 {
	if anchor != nil {
		return anchor.Y - floats.Dot(bAnchor, coef)
	}
	return v[nb]
}

// normalizeWeights validates weights and rescales them to sum to 1.
// Nil weights mean uniform.
func normalizeWeights(w []float64, n int) ([]float64, error) {
	out := make([]float64, n)
	if w == nil {
		for i := range out {
			out[i] = 1.0 / float64(n)
		}
		return out, nil
	}
	if len(w) != n {
		return nil, errs.Warnf("fit err: weights length mismatch (%d vs %d)", len(w), n)
	}
	sum := 0.0
	for i, v := range w {
		if v < 0 || math.IsNaN(v) {
			return nil, errs.Warnf("fit err: weight %d must be non-negative, got %g", i, v)
		}
		sum += v
	}
	if sum <= 0 {
		return nil, errs.NewWarn("fit err: weights sum to zero")
	}
	for i, v := range w {
		out[i] = v / sum
	}
	return out, nil
}

// diagnostics computes RMSE/R2 against the original targets and runs
// the dense-grid monotonicity check over the fitted domain.
func diagnostics(x, y, w []float64, b *mat.Dense, params *Params, best solve.Result) *FitInfo {
	n := len(x)
	ssRes, sqSum := 0.0, 0.0
	yBar := stat.Mean(y, w)
	ssTot := 0.0
	for i := 0; i < n; i++ {
		pred := params.Intercept + floats.Dot(b.RawRowView(i), params.Coefficients)
		d := y[i] - pred
		ssRes += w[i] * d * d
		sqSum += d * d
		dt := y[i] - yBar
		ssTot += w[i] * dt * dt
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	return &FitInfo{
		RMSE:        math.Sqrt(sqSum / float64(n)),
		R2:          r2,
		IsMonotone:  IsMonotone(params),
		Converged:   best.Converged,
		NIterations: best.Iterations,
	}
}

// IsMonotone evaluates the curve on a dense uniform grid across its
// fitted domain and confirms no pairwise decrease beyond the numerical
// tolerance. Violations are reported, never auto-corrected.
func IsMonotone(params *Params) bool {
	grid := make([]float64, monoGrid)
	step := (params.XMax - params.XMin) / float64(monoGrid-1)
	for i := range grid {
		grid[i] = params.XMin + float64(i)*step
	}
	vals := Evaluate(grid, params)
	for i := 0; i+1 < len(vals); i++ {
		if vals[i+1]-vals[i] < monoTol {
			return false
		}
	}
	return true
}

// softplusInto writes softplus(raw) into dst. Softplus keeps every
// coefficient strictly positive with a derivative that never vanishes,
// which is what makes the unconstrained search monotonicity-safe. Large
// inputs short-circuit to identity to dodge exp overflow.
func softplusInto(dst, raw []float64) {
	for i, t := range raw {
		if t > 30 {
			dst[i] = t
			continue
		}
		dst[i] = math.Log1p(math.Exp(t))
	}
}
