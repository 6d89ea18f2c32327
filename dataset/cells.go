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

// Package dataset loads observation tables from JSON files. Loading is
// fail-fast: a malformed or incomplete record aborts the load with an
// error naming the offending row, never a silently defaulted cell.
package dataset

import (
	"encoding/json"
	"io/fs"

	"github.com/zintix-labs/monocal/calib"
	"github.com/zintix-labs/monocal/errs"
	"github.com/zintix-labs/monocal/shrink"
)

// cellRecord mirrors calib.Cell with pointer fields so a missing key is
// distinguishable from a legitimate zero.
type cellRecord struct {
	LevelA *float64 `json:"level_a"`
	LevelB *float64 `json:"level_b"`
	Rate   *float64 `json:"rate"`
	Weight *float64 `json:"weight"`
}

// LoadCells reads an observation table from name inside fsys. Rows with
// weight zero are kept; the calibrator decides what to do with them.
func LoadCells(fsys fs.FS, name string) ([]calib.Cell, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errs.Wrap(err, "can not read cells file "+name)
	}
	var recs []cellRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, errs.Wrap(err, "can not unmarshal cells file "+name)
	}
	if len(recs) == 0 {
		return nil, errs.Warnf("cells file %s is empty", name)
	}

	cells := make([]calib.Cell, 0, len(recs))
	for i, r := range recs {
		if r.LevelA == nil || r.LevelB == nil || r.Rate == nil || r.Weight == nil {
			return nil, errs.Warnf("cells file %s: row %d is missing a required key", name, i)
		}
		cells = append(cells, calib.Cell{
			LevelA: *r.LevelA,
			LevelB: *r.LevelB,
			Rate:   *r.Rate,
			Weight: *r.Weight,
		})
	}
	return cells, nil
}

// entityRecord mirrors shrink.Entity with pointer fields, same
// missing-key discipline as cellRecord.
type entityRecord struct {
	Name      *string  `json:"name"`
	Tier      *string  `json:"tier"`
	Trials    *float64 `json:"trials"`
	Successes *float64 `json:"successes"`
}

// LoadEntities reads a per-entity outcome table from name inside fsys.
func LoadEntities(fsys fs.FS, name string) ([]shrink.Entity, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errs.Wrap(err, "can not read entities file "+name)
	}
	var recs []entityRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, errs.Wrap(err, "can not unmarshal entities file "+name)
	}

	ents := make([]shrink.Entity, 0, len(recs))
	for i, r := range recs {
		if r.Name == nil || r.Tier == nil || r.Trials == nil || r.Successes == nil {
			return nil, errs.Warnf("entities file %s: row %d is missing a required key", name, i)
		}
		if *r.Trials < 0 || *r.Successes < 0 || *r.Successes > *r.Trials {
			return nil, errs.Warnf("entities file %s: row %d has inconsistent counts (%g successes of %g trials)",
				name, i, *r.Successes, *r.Trials)
		}
		ents = append(ents, shrink.Entity{
			Name:      *r.Name,
			Tier:      *r.Tier,
			Trials:    *r.Trials,
			Successes: *r.Successes,
		})
	}
	return ents, nil
}
