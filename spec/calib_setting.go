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

// Package spec holds the immutable calibration settings. Settings are
// decoded once from YAML or JSON, validated, defaulted, and then passed
// by value into the calibration code; no ambient mutable state exists.
package spec

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/zintix-labs/monocal/errs"
)

// Defaults applied by init() when the corresponding field is unset.
const (
	DefaultNBasis        = 6
	DefaultDegree        = 3
	DefaultSmoothness    = 0.001
	DefaultMonoPenalty   = 100.0
	DefaultSmoothPenalty = 0.01
	DefaultRestarts      = 3
	DefaultMaxIter       = 2000
)

// FactorSetting configures one monotone effect curve.
type FactorSetting struct {
	// Name labels the factor in reports and artifacts (e.g. "gpa").
	Name string `yaml:"name" json:"name"`
	// Anchor is the input at which the continuous curve must be exactly
	// zero after calibration.
	Anchor float64 `yaml:"anchor" json:"anchor"`
	// NBasis / Degree size the I-spline basis.
	NBasis int `yaml:"n_basis" json:"n_basis"`
	Degree int `yaml:"degree"  json:"degree"`
	// XMin / XMax bound the curve domain.
	XMin float64 `yaml:"x_min" json:"x_min"`
	XMax float64 `yaml:"x_max" json:"x_max"`
	// Smoothness is the L2 penalty on adjacent spline coefficient
	// differences in the continuous refit.
	Smoothness float64 `yaml:"smoothness" json:"smoothness"`
}

// CalibSetting configures one two-factor calibration run.
type CalibSetting struct {
	FactorA FactorSetting `yaml:"factor_a" json:"factor_a"`
	FactorB FactorSetting `yaml:"factor_b" json:"factor_b"`

	// MonoPenalty scales the soft monotonicity penalty of the discrete
	// additive stage; large enough that violations are effectively
	// forbidden without hard constraints.
	MonoPenalty float64 `yaml:"mono_penalty" json:"mono_penalty"`
	// SmoothPenalty scales the smoothness penalty of the same stage.
	SmoothPenalty float64 `yaml:"smooth_penalty" json:"smooth_penalty"`

	// Restarts / MaxIter bound the quasi-Newton searches.
	Restarts int `yaml:"restarts" json:"restarts"`
	MaxIter  int `yaml:"max_iter" json:"max_iter"`
}

// GetCalibSettingByYAML decodes, defaults and validates a YAML setting.
func GetCalibSettingByYAML(data []byte) (*CalibSetting, error) {
	cs := &CalibSetting{}
	if err := yaml.Unmarshal(data, cs); err != nil {
		return nil, errs.Wrap(err, "failed to unmarshal yaml")
	}
	if err := cs.init(); err != nil {
		return nil, errs.Wrap(err, "calib setting initialize err")
	}
	return cs, nil
}

// GetCalibSettingByJSON decodes, defaults and validates a JSON setting.
func GetCalibSettingByJSON(data []byte) (*CalibSetting, error) {
	cs := &CalibSetting{}
	if err := json.Unmarshal(data, cs); err != nil {
		return nil, errs.Wrap(err, "can not unmarshal json bytes")
	}
	if err := cs.init(); err != nil {
		return nil, errs.Wrap(err, "calib setting initialize err")
	}
	return cs, nil
}

// init fills defaults and validates the whole setting.
func (s *CalibSetting) init() error {
	if s.MonoPenalty == 0 {
		s.MonoPenalty = DefaultMonoPenalty
	}
	if s.SmoothPenalty == 0 {
		s.SmoothPenalty = DefaultSmoothPenalty
	}
	if s.Restarts == 0 {
		s.Restarts = DefaultRestarts
	}
	if s.MaxIter == 0 {
		s.MaxIter = DefaultMaxIter
	}
	if err := s.FactorA.init("factor_a"); err != nil {
		return err
	}
	if err := s.FactorB.init("factor_b"); err != nil {
		return err
	}
	if s.MonoPenalty < 0 {
		return errs.NewFatal("calib setting: mono_penalty must be non-negative")
	}
	if s.SmoothPenalty < 0 {
		return errs.NewFatal("calib setting: smooth_penalty must be non-negative")
	}
	if s.Restarts < 1 {
		return errs.NewFatal("calib setting: restarts must be at least 1")
	}
	if s.MaxIter < 1 {
		return errs.NewFatal("calib setting: max_iter must be at least 1")
	}
	return nil
}

func (f *FactorSetting) init(which string) error {
	if f.Name == "" {
		return errs.Fatalf("calib setting: %s name is required", which)
	}
	if f.NBasis == 0 {
		f.NBasis = DefaultNBasis
	}
	if f.NBasis < 1 {
		return errs.Fatalf("calib setting: %s n_basis must be at least 1", which)
	}
	if f.Degree == 0 {
		f.Degree = DefaultDegree
	}
	if f.Degree < 0 {
		return errs.Fatalf("calib setting: %s degree must be non-negative", which)
	}
	if f.Smoothness == 0 {
		f.Smoothness = DefaultSmoothness
	}
	if f.Smoothness < 0 {
		return errs.Fatalf("calib setting: %s smoothness must be non-negative", which)
	}
	if !(f.XMax > f.XMin) {
		return errs.Fatalf("calib setting: %s x_max must be greater than x_min, got [%g,%g]", which, f.XMin, f.XMax)
	}
	if f.Anchor < f.XMin || f.Anchor > f.XMax {
		return errs.Fatalf("calib setting: %s anchor %g outside domain [%g,%g]", which, f.Anchor, f.XMin, f.XMax)
	}
	return nil
}
