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

// Package solve wraps gonum's L-BFGS behind the failure semantics the
// calibration code wants: non-convergence is not an error, the best
// point found is always returned together with a Converged flag.
package solve

import (
	"errors"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// Result is the outcome of one minimization run.
type Result struct {
	X          []float64
	F          float64
	Iterations int
	Converged  bool
}

// Minimize runs a quasi-Newton (limited-memory BFGS) search on fn from
// x0, with numerical gradients. maxIter bounds the major iterations and
// is the only termination safeguard besides the convergence tests.
//
// The returned Result always carries a usable point: if the optimizer
// reports a failure or hits the iteration limit, X holds the best
// location reached (or x0 itself) and Converged is false.
func Minimize(fn func([]float64) float64, x0 []float64, maxIter int) Result {
	if maxIter <= 0 {
		maxIter = 2000
	}
	p := optimize.Problem{
		Func: fn,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, fn, x, nil)
		},
	}
	// The gradient threshold must stay above the numerical-gradient
	// noise floor (~sqrt(machine eps) per component), or the search can
	// never satisfy it and dies in the linesearch instead.
	settings := &optimize.Settings{
		MajorIterations:   maxIter,
		GradientThreshold: 1e-6,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 100,
		},
	}

	res, err := optimize.Minimize(p, x0, settings, &optimize.LBFGS{})
	if res == nil {
		// Nothing usable came back; keep the start point.
		x := make([]float64, len(x0))
		copy(x, x0)
		return Result{X: x, F: fn(x0)}
	}

	out := Result{
		X:          res.X,
		F:          res.F,
		Iterations: res.Stats.MajorIterations,
	}
	switch {
	case err == nil:
		switch res.Status {
		case optimize.Success,
			optimize.FunctionThreshold,
			optimize.FunctionConvergence,
			optimize.GradientThreshold,
			optimize.StepConvergence,
			optimize.MethodConverge:
			out.Converged = true
		}
	case errors.Is(err, optimize.ErrNoProgress):
		// The linesearch step underflowed: with numerical gradients the
		// search bottoms out at the fd noise floor before any threshold
		// test fires. A stall with no representable descent left is a
		// minimum at floating-point resolution, not a failure.
		out.Converged = true
	}
	return out
}
