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

// Package calib calibrates two independent monotone effect curves
// against a 2-D table of observed probabilities.
//
// The run is two-staged: a penalized weighted least-squares fit of
// discrete per-level effects on the log-odds scale (soft monotonicity,
// soft smoothness), followed by a monotone spline refit of each
// discrete effect vector into a continuous curve. The discrete stage's
// monotonicity is best-effort; the continuous stage carries the hard
// guarantee.
package calib

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/zintix-labs/monocal/errs"
	"github.com/zintix-labs/monocal/sdk/core"
	"github.com/zintix-labs/monocal/sdk/solve"
	"github.com/zintix-labs/monocal/spec"
	"github.com/zintix-labs/monocal/spline"
)

// Probabilities are clamped into this band before the log-odds
// transform so degenerate 0/1 rates never become infinities.
const (
	ProbFloor = 0.01
	ProbCeil  = 0.99
)

// Cell is one observation: a level of factor A, a level of factor B,
// the observed probability at that combination, and a reliability
// weight.
type Cell struct {
	LevelA float64 `json:"level_a"`
	LevelB float64 `json:"level_b"`
	Rate   float64 `json:"rate"`
	Weight float64 `json:"weight"`
}

// Info carries the diagnostics of one calibration run. Field names are
// stable across runs: the downstream consumer binds to them by name.
//
// RMSE is sqrt(sum(w*r^2)) on the probability scale with the cell
// weights renormalized to sum 1, so it does not grow with the table's
// absolute weight mass. Conventions that keep raw weights report a
// larger value for the same fit.
type Info struct {
	RMSE        float64 `json:"rmse"`
	R2          float64 `json:"r2"`
	AMonotone   bool    `json:"a_monotone"`
	BMonotone   bool    `json:"b_monotone"`
	Converged   bool    `json:"converged"`
	NIterations int     `json:"n_iterations"`
	AnchorA     float64 `json:"anchor_a"`
	AnchorB     float64 `json:"anchor_b"`
	ASplineR2   float64 `json:"a_spline_r2"`
	BSplineR2   float64 `json:"b_spline_r2"`
}

// Result is the immutable output of Calibrate. The curves are anchored
// so each evaluates to exactly zero at its factor's anchor input;
// GlobalIntercept is the log-odds value the two curves add onto to
// reproduce the fitted probability surface.
//
// LevelsA/EffectsA (and the B pair) expose the centered discrete stage
// output for reporting; the continuous curves supersede them.
type Result struct {
	CurveA          *spline.Params
	CurveB          *spline.Params
	GlobalIntercept float64
	Info            *Info

	LevelsA  []float64
	EffectsA []float64
	LevelsB  []float64
	EffectsB []float64
}

// Calibrate runs the full two-stage calibration of set against cells
// using c as the seeded random source for the spline refits.
func Calibrate(cells []Cell, set *spec.CalibSetting, c *core.Core) (*Result, error) {
	if set == nil {
		return nil, errs.NewWarn("calibrate err: setting is required")
	}
	if c == nil {
		return nil, errs.NewWarn("calibrate err: core is required")
	}
	obs, err := prepare(cells)
	if err != nil {
		return nil, err
	}

	// Stage 1: discrete additive effects on the log-odds scale.
	disc := fitDiscrete(obs, set)

	// Anchor bookkeeping: nearest observed level to each anchor input.
	ai := nearestIndex(obs.levelsA, set.FactorA.Anchor)
	bi := nearestIndex(obs.levelsB, set.FactorB.Anchor)
	globalIntercept := disc.alphaA[ai] + disc.alphaB[bi]

	// Center each discrete vector so it is zero at its anchor level.
	centeredA := centerAt(disc.alphaA, ai)
	centeredB := centerAt(disc.alphaB, bi)

	// Stage 2: continuous monotone refit of each discrete vector.
	curveA, infoA, err := refit(obs.levelsA, centeredA, set.FactorA, set, c)
	if err != nil {
		return nil, err
	}
	curveB, infoB, err := refit(obs.levelsB, centeredB, set.FactorB, set, c)
	if err != nil {
		return nil, err
	}

	// The discrete anchor level and the continuous anchor input need
	// not coincide; subtract the evaluated value so each curve is
	// exactly zero at the real-valued anchor.
	curveA.Intercept -= spline.EvaluateAt(set.FactorA.Anchor, curveA)
	curveB.Intercept -= spline.EvaluateAt(set.FactorB.Anchor, curveB)

	info := diagnostics(obs, disc, set)
	info.AMonotone = infoA.IsMonotone
	info.BMonotone = infoB.IsMonotone
	info.Converged = disc.converged && infoA.Converged && infoB.Converged
	info.ASplineR2 = infoA.R2
	info.BSplineR2 = infoB.R2

	return &Result{
		CurveA:          curveA,
		CurveB:          curveB,
		GlobalIntercept: globalIntercept,
		Info:            info,
		LevelsA:         obs.levelsA,
		EffectsA:        centeredA,
		LevelsB:         obs.levelsB,
		EffectsB:        centeredB,
	}, nil
}

// observations is the validated, indexed view of the input cells.
type observations struct {
	cells   []Cell    // usable cells, weights renormalized to sum 1
	logit   []float64 // clamped log-odds per cell
	clamped []float64 // clamped probability per cell
	idxA    []int     // per-cell level index into levelsA
	idxB    []int
	levelsA []float64 // distinct sorted levels
	levelsB []float64
}

// prepare validates the cells, drops zero-weight ones, renormalizes the
// remaining weights and indexes the distinct factor levels.
func prepare(cells []Cell) (*observations, error) {
	if len(cells) == 0 {
		return nil, errs.NewWarn("calibrate err: observation cells required")
	}
	usable := make([]Cell, 0, len(cells))
	total := 0.0
	for i, cl := range cells {
		if math.IsNaN(cl.LevelA) || math.IsNaN(cl.LevelB) {
			return nil, errs.Warnf("calibrate err: cell %d has NaN level", i)
		}
		if math.IsNaN(cl.Rate) || cl.Rate < 0 || cl.Rate > 1 {
			return nil, errs.Warnf("calibrate err: cell %d rate must be a probability, got %g", i, cl.Rate)
		}
		if math.IsNaN(cl.Weight) || cl.Weight < 0 {
			return nil, errs.Warnf("calibrate err: cell %d weight must be non-negative, got %g", i, cl.Weight)
		}
		if cl.Weight == 0 {
			continue
		}
		usable = append(usable, cl)
		total += cl.Weight
	}
	if len(usable) == 0 || total <= 0 {
		return nil, errs.NewWarn("calibrate err: all cell weights are zero")
	}

	obs := &observations{
		cells:   usable,
		logit:   make([]float64, len(usable)),
		clamped: make([]float64, len(usable)),
		idxA:    make([]int, len(usable)),
		idxB:    make([]int, len(usable)),
	}
	la, lb := map[float64]struct{}{}, map[float64]struct{}{}
	for i := range usable {
		obs.cells[i].Weight = usable[i].Weight / total
		p := clamp(usable[i].Rate)
		obs.clamped[i] = p
		obs.logit[i] = Logit(p)
		la[usable[i].LevelA] = struct{}{}
		lb[usable[i].LevelB] = struct{}{}
	}
	obs.levelsA = sortedKeys(la)
	obs.levelsB = sortedKeys(lb)
	for i := range usable {
		obs.idxA[i] = sort.SearchFloat64s(obs.levelsA, usable[i].LevelA)
		obs.idxB[i] = sort.SearchFloat64s(obs.levelsB, usable[i].LevelB)
	}
	return obs, nil
}

// discrete is the stage-1 output.
type discrete struct {
	alphaA     []float64
	alphaB     []float64
	iterations int
	converged  bool
}

// fitDiscrete solves the penalized weighted least-squares problem for
// the per-level effect vectors. The one-hot design never materializes:
// each cell reads its two effects by index. Monotonicity here is a soft
// penalty on negative consecutive differences, not a transform, so the
// search operates directly on the concatenated vectors.
func fitDiscrete(obs *observations, set *spec.CalibSetting) *discrete {
	nA, nB := len(obs.levelsA), len(obs.levelsB)
	obj := func(v []float64) float64 {
		aA, aB := v[:nA], v[nA:nA+nB]
		sse := 0.0
		for i := range obs.cells {
			pred := aA[obs.idxA[i]] + aB[obs.idxB[i]]
			d := obs.logit[i] - pred
			sse += obs.cells[i].Weight * d * d
		}
		pen := set.MonoPenalty*(monoViolation(aA)+monoViolation(aB)) +
			set.SmoothPenalty*(roughness(aA)+roughness(aB))
		return sse + pen
	}

	// Initial guess: both effects linear across the observed logit
	// range, the shape the calibrated vectors usually take.
	x0 := make([]float64, nA+nB)
	linspaceInto(x0[:nA], -2, 2)
	linspaceInto(x0[nA:], -2, 2)

	res := solve.Minimize(obj, x0, set.MaxIter)
	return &discrete{
		alphaA:     append([]float64(nil), res.X[:nA]...),
		alphaB:     append([]float64(nil), res.X[nA:nA+nB]...),
		iterations: res.Iterations,
		converged:  res.Converged,
	}
}

// refit turns one centered discrete effect vector into a continuous
// monotone curve.
func refit(levels, effects []float64, f spec.FactorSetting, set *spec.CalibSetting, c *core.Core) (*spline.Params, *spline.FitInfo, error) {
	opt := spline.NewOptions()
	opt.NBasis = f.NBasis
	opt.Degree = f.Degree
	opt.Smoothness = f.Smoothness
	opt.XMin = &f.XMin
	opt.XMax = &f.XMax
	opt.Restarts = set.Restarts
	opt.MaxIter = set.MaxIter
	return spline.Fit(levels, effects, opt, c)
}

// diagnostics reports the discrete-stage fit quality back on the
// probability scale, where the downstream consumer lives.
func diagnostics(obs *observations, disc *discrete, set *spec.CalibSetting) *Info {
	n := len(obs.cells)
	w := make([]float64, n)
	resid := make([]float64, n)
	for i := range obs.cells {
		w[i] = obs.cells[i].Weight
		pred := Sigmoid(disc.alphaA[obs.idxA[i]] + disc.alphaB[obs.idxB[i]])
		resid[i] = obs.clamped[i] - pred
	}
	ssRes, wrmse := 0.0, 0.0
	for i := range resid {
		ssRes += w[i] * resid[i] * resid[i]
	}
	wrmse = math.Sqrt(ssRes)
	pBar := stat.Mean(obs.clamped, w)
	ssTot := 0.0
	for i := range obs.clamped {
		d := obs.clamped[i] - pBar
		ssTot += w[i] * d * d
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	return &Info{
		RMSE:        wrmse,
		R2:          r2,
		NIterations: disc.iterations,
		AnchorA:     set.FactorA.Anchor,
		AnchorB:     set.FactorB.Anchor,
	}
}

// Logit returns log(p/(1-p)).
func Logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

// Sigmoid is the inverse of Logit.
func Sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func clamp(p float64) float64 {
	if p < ProbFloor {
		return ProbFloor
	}
	if p > ProbCeil {
		return ProbCeil
	}
	return p
}

// monoViolation sums the squared magnitude of negative consecutive
// differences; zero for a non-decreasing vector.
func monoViolation(a []float64) float64 {
	s := 0.0
	for i := 0; i+1 < len(a); i++ {
		if d := a[i+1] - a[i]; d < 0 {
			s += d * d
		}
	}
	return s
}

// roughness sums squared consecutive differences.
func roughness(a []float64) float64 {
	s := 0.0
	for i := 0; i+1 < len(a); i++ {
		d := a[i+1] - a[i]
		s += d * d
	}
	return s
}

// nearestIndex returns the index of the level closest to x.
func nearestIndex(levels []float64, x float64) int {
	best, bestD := 0, math.Inf(1)
	for i, l := range levels {
		if d := math.Abs(l - x); d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

// centerAt returns a copy of a shifted so a[idx] becomes zero.
func centerAt(a []float64, idx int) []float64 {
	out := make([]float64, len(a))
	shift := a[idx]
	for i, v := range a {
		out[i] = v - shift
	}
	return out
}

// sortedKeys returns the map keys in ascending order.
func sortedKeys(m map[float64]struct{}) []float64 {
	out := make([]float64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Float64s(out)
	return out
}

// linspaceInto fills dst with evenly spaced values from lo to hi.
func linspaceInto(dst []float64, lo, hi float64) {
	n := len(dst)
	if n == 1 {
		dst[0] = lo
		return
	}
	step := (hi - lo) / float64(n-1)
	for i := range dst {
		dst[i] = lo + float64(i)*step
	}
}
