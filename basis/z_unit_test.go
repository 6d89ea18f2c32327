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

package basis_test

import (
	"math"
	"testing"

	"github.com/zintix-labs/monocal/basis"
)

func TestConfigValid(t *testing.T) {
	cfg := basis.Config{NBasis: 6, Degree: 3, XMin: 0, XMax: 1}
	if err := cfg.Valid(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := []basis.Config{
		{NBasis: 0, Degree: 3, XMin: 0, XMax: 1},
		{NBasis: 6, Degree: -1, XMin: 0, XMax: 1},
		{NBasis: 6, Degree: 3, XMin: 1, XMax: 1},
		{NBasis: 6, Degree: 3, XMin: 2, XMax: 1},
	}
	for i, c := range bad {
		if err := c.Valid(); err == nil {
			t.Fatalf("bad config %d accepted: %+v", i, c)
		}
	}
}

func TestKnotsDeterministic(t *testing.T) {
	cfg := basis.Config{NBasis: 6, Degree: 3, XMin: 2.0, XMax: 4.0}
	k1 := cfg.Knots()
	k2 := cfg.Knots()
	if len(k1) != len(k2) {
		t.Fatalf("knot lengths differ: %d vs %d", len(k1), len(k2))
	}
	for i := range k1 {
		if k1[i] != k2[i] {
			t.Fatalf("knot %d differs: %g vs %g", i, k1[i], k2[i])
		}
	}
	// degree+1 boundary repeats on each side.
	for i := 0; i <= cfg.Degree; i++ {
		if k1[i] != cfg.XMin {
			t.Fatalf("leading knot %d is %g, want %g", i, k1[i], cfg.XMin)
		}
		if k1[len(k1)-1-i] != cfg.XMax {
			t.Fatalf("trailing knot %d is %g, want %g", i, k1[len(k1)-1-i], cfg.XMax)
		}
	}
	// interior knots strictly increasing.
	for i := cfg.Degree; i < len(k1)-cfg.Degree-1; i++ {
		if k1[i+1] < k1[i] {
			t.Fatalf("knots not sorted at %d: %g > %g", i, k1[i], k1[i+1])
		}
	}
}

func TestBSplinePartitionOfUnity(t *testing.T) {
	nb, degree := 7, 3
	xMin, xMax := 0.0, 1.0
	xs := []float64{0, 0.1, 0.25, 0.5, 0.77, 0.99, 1.0}
	m := basis.BSplineMatrix(xs, nb, degree, xMin, xMax)
	for i := range xs {
		sum := 0.0
		for j := 0; j < nb; j++ {
			v := m.At(i, j)
			if v < -1e-12 {
				t.Fatalf("negative basis value at (%d,%d): %g", i, j, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("row %d (x=%g) sums to %g, want 1", i, xs[i], sum)
		}
	}
}

func TestISplineBoundaryIdentity(t *testing.T) {
	cfg := basis.Config{NBasis: 6, Degree: 3, XMin: 2.0, XMax: 4.0}
	m, knots := basis.ISplineMatrix([]float64{cfg.XMin, cfg.XMax}, cfg)
	if len(knots) != 2*(cfg.Degree+1)+(cfg.NBasis-cfg.Degree) {
		t.Fatalf("unexpected knot count %d", len(knots))
	}
	for j := 0; j < cfg.NBasis; j++ {
		if v := m.At(0, j); math.Abs(v) > 1e-12 {
			t.Fatalf("column %d at x_min is %g, want 0", j, v)
		}
		if v := m.At(1, j); math.Abs(v-1) > 1e-9 {
			t.Fatalf("column %d at x_max is %g, want 1", j, v)
		}
	}
}

func TestISplineColumnsMonotone(t *testing.T) {
	cfg := basis.Config{NBasis: 6, Degree: 3, XMin: 486, XMax: 528}
	n := 101
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = cfg.XMin + (cfg.XMax-cfg.XMin)*float64(i)/float64(n-1)
	}
	m, _ := basis.ISplineMatrix(xs, cfg)
	for j := 0; j < cfg.NBasis; j++ {
		for i := 0; i+1 < n; i++ {
			if m.At(i+1, j)-m.At(i, j) < -1e-10 {
				t.Fatalf("column %d decreases between x=%g and x=%g", j, xs[i], xs[i+1])
			}
		}
		for i := 0; i < n; i++ {
			if v := m.At(i, j); v < -1e-12 || v > 1+1e-9 {
				t.Fatalf("column %d out of [0,1] at x=%g: %g", j, xs[i], v)
			}
		}
	}
}

func TestISplineSmallBasisEdge(t *testing.T) {
	// n_basis <= degree clamps the interior knots away entirely; the
	// construction must stay finite.
	cfg := basis.Config{NBasis: 2, Degree: 3, XMin: 0, XMax: 1}
	m, _ := basis.ISplineMatrix([]float64{0, 0.5, 1}, cfg)
	for i := 0; i < 3; i++ {
		for j := 0; j < cfg.NBasis; j++ {
			if v := m.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("non-finite value at (%d,%d): %g", i, j, v)
			}
		}
	}
}

func TestISplineExtrapolation(t *testing.T) {
	cfg := basis.Config{NBasis: 6, Degree: 3, XMin: 0, XMax: 1}
	m, _ := basis.ISplineMatrix([]float64{1.0, 1.2}, cfg)
	// Beyond x_max the boundary polynomial continues: everything must
	// stay finite, columns saturated well before x_max stay pinned at 1,
	// and the last column keeps rising.
	for j := 0; j < cfg.NBasis; j++ {
		out := m.At(1, j)
		if math.IsNaN(out) || math.IsInf(out, 0) {
			t.Fatalf("column %d extrapolates to non-finite %g", j, out)
		}
	}
	if v := m.At(1, 0); math.Abs(v-1) > 1e-9 {
		t.Fatalf("saturated column extrapolates to %g, want 1", v)
	}
	if v := m.At(1, cfg.NBasis-1); v < 1 {
		t.Fatalf("last column extrapolates to %g, want >= 1", v)
	}
}
