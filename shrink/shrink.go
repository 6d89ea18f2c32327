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

// Package shrink turns sparse per-entity outcome counts into stable
// log-odds intercepts by partial pooling toward tier means.
//
// Entities with many trials keep their own estimate almost untouched;
// entities with few trials are pulled toward their tier's pooled mean.
// The pooling weight is n/(n+k), the classic credibility form, so no
// entity estimate ever relies on fewer effective observations than the
// pseudo-count k provides.
package shrink

import (
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/zintix-labs/monocal/calib"
	"github.com/zintix-labs/monocal/errs"
	"github.com/zintix-labs/monocal/sdk/core"
)

// DefaultPseudoCount is the k in the pooling weight n/(n+k).
const DefaultPseudoCount = 20.0

// Entity is one unit's raw outcome counts within a tier.
type Entity struct {
	Name      string  `json:"name"`
	Tier      string  `json:"tier"`
	Trials    float64 `json:"trials"`
	Successes float64 `json:"successes"`
}

// Params is the pooled estimate for one entity: a log-odds intercept
// plus the posterior spread left after pooling.
type Params struct {
	Name      string  `json:"name"`
	Tier      string  `json:"tier"`
	Intercept float64 `json:"intercept"`
	Sigma     float64 `json:"sigma"`
	// PoolWeight is n/(n+k): 1 means the raw estimate survived
	// untouched, 0 means the tier mean replaced it entirely.
	PoolWeight float64 `json:"pool_weight"`
}

// TierStats summarizes one tier's raw log-odds estimates.
type TierStats struct {
	Tier  string  `json:"tier"`
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
}

// Pool computes pooled parameters for every entity. k is the
// pseudo-count; pass 0 for the default. Entities with zero trials
// collapse fully onto their tier mean.
func Pool(ents []Entity, k float64) ([]Params, []TierStats, error) {
	if len(ents) == 0 {
		return nil, nil, errs.NewWarn("shrink err: entities required")
	}
	if k < 0 {
		return nil, nil, errs.Warnf("shrink err: pseudo-count must be non-negative, got %g", k)
	}
	if k == 0 {
		k = DefaultPseudoCount
	}
	for i, e := range ents {
		if e.Trials < 0 || e.Successes < 0 || e.Successes > e.Trials {
			return nil, nil, errs.Warnf("shrink err: entity %d has inconsistent counts", i)
		}
	}

	raw := make([]float64, len(ents))
	for i, e := range ents {
		raw[i] = rawLogit(e)
	}
	tiers := tierStats(ents, raw)

	out := make([]Params, len(ents))
	for i, e := range ents {
		ts := tiers[e.Tier]
		w := e.Trials / (e.Trials + k)
		sigma := ts.Std
		if sigma == 0 {
			// A single-entity tier has no spread to measure; carry the
			// pooling uncertainty itself.
			sigma = 0.5
		}
		out[i] = Params{
			Name:       e.Name,
			Tier:       e.Tier,
			Intercept:  w*raw[i] + (1-w)*ts.Mean,
			Sigma:      (1 - w) * sigma,
			PoolWeight: w,
		}
	}

	// Stable tier report ordering.
	names := make([]string, 0, len(tiers))
	for t := range tiers {
		names = append(names, t)
	}
	sort.Strings(names)
	stats := make([]TierStats, 0, len(names))
	for _, t := range names {
		stats = append(stats, tiers[t])
	}
	return out, stats, nil
}

// Predict returns the entity's success probability at the given
// log-odds offset (the summed curve values plus global intercept from a
// calibration), applied on top of the pooled intercept.
func Predict(p Params, offset float64) float64 {
	return calib.Sigmoid(p.Intercept + offset)
}

// PredictDraw samples one posterior draw of the prediction, expressing
// the residual pooling uncertainty. Deterministic given the Core seed.
func PredictDraw(p Params, offset float64, c *core.Core) float64 {
	n := distuv.Normal{Mu: p.Intercept, Sigma: p.Sigma, Src: c}
	return calib.Sigmoid(n.Rand() + offset)
}

// rawLogit is the entity's own log-odds estimate, clamped through the
// same probability band the calibrator uses so empty or perfect records
// stay finite.
func rawLogit(e Entity) float64 {
	if e.Trials == 0 {
		// No data at all; the pooling weight is zero so this value never
		// survives, but keep it defined.
		return 0
	}
	rate := e.Successes / e.Trials
	if rate < calib.ProbFloor {
		rate = calib.ProbFloor
	}
	if rate > calib.ProbCeil {
		rate = calib.ProbCeil
	}
	return calib.Logit(rate)
}

// tierStats groups the raw estimates by tier, weighting each entity by
// its trial count so large entities dominate their tier mean.
func tierStats(ents []Entity, raw []float64) map[string]TierStats {
	byTier := map[string][]int{}
	for i, e := range ents {
		byTier[e.Tier] = append(byTier[e.Tier], i)
	}
	out := make(map[string]TierStats, len(byTier))
	for t, idx := range byTier {
		vals := make([]float64, len(idx))
		w := make([]float64, len(idx))
		anyTrials := false
		for j, i := range idx {
			vals[j] = raw[i]
			w[j] = ents[i].Trials
			if ents[i].Trials > 0 {
				anyTrials = true
			}
		}
		if !anyTrials {
			// All-empty tier: unweighted mean of the (zero) estimates.
			w = nil
		}
		mean, std := stat.MeanStdDev(vals, w)
		if len(idx) < 2 {
			std = 0
		}
		out[t] = TierStats{Tier: t, Count: len(idx), Mean: mean, Std: std}
	}
	return out
}
