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

// Package artifact persists calibration results. The JSON layout is a
// public contract: key names never change between versions, because
// downstream consumers in other languages bind to them by name.
//
// Two encodings are supported: plain JSON for inspection and diffing,
// and zstd-compressed JSON for archival of large calibration sweeps.
package artifact

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/zintix-labs/monocal/calib"
	"github.com/zintix-labs/monocal/errs"
	"github.com/zintix-labs/monocal/spec"
	"github.com/zintix-labs/monocal/spline"
)

// Version tags the artifact layout.
const Version = "1.0"

// Record is one persisted calibration: the settings it ran under, the
// fitted curves, and the run diagnostics.
type Record struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`

	FactorA spec.FactorSetting `json:"factor_a"`
	FactorB spec.FactorSetting `json:"factor_b"`

	CurveA          *spline.Params `json:"curve_a"`
	CurveB          *spline.Params `json:"curve_b"`
	GlobalIntercept float64        `json:"global_intercept"`

	Calibration *calib.Info `json:"calibration"`
}

// New assembles a Record from one calibration run, stamped now.
func New(set *spec.CalibSetting, res *calib.Result) *Record {
	return &Record{
		Version:         Version,
		CreatedAt:       time.Now().UTC(),
		FactorA:         set.FactorA,
		FactorB:         set.FactorB,
		CurveA:          res.CurveA,
		CurveB:          res.CurveB,
		GlobalIntercept: res.GlobalIntercept,
		Calibration:     res.Info,
	}
}

// Valid checks the structural integrity of a loaded record.
func (r *Record) Valid() error {
	if r.Version == "" {
		return errs.NewWarn("artifact err: version missing")
	}
	if r.CurveA == nil || r.CurveB == nil {
		return errs.NewWarn("artifact err: curves missing")
	}
	if r.CurveA.NBasis < 1 || r.CurveB.NBasis < 1 {
		return errs.NewWarn("artifact err: curve basis is empty")
	}
	return nil
}

// Eval evaluates the full calibrated model at one (a, b) input pair and
// returns the predicted probability.
func (r *Record) Eval(a, b float64) float64 {
	z := r.GlobalIntercept +
		spline.EvaluateAt(a, r.CurveA) +
		spline.EvaluateAt(b, r.CurveB)
	return calib.Sigmoid(z)
}

// WriteJSON writes the record as indented JSON.
func WriteJSON(w io.Writer, r *Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return errs.Wrap(err, "can not encode artifact")
	}
	return nil
}

// ReadJSON decodes and validates a plain JSON record.
func ReadJSON(rd io.Reader) (*Record, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, errs.Wrap(err, "can not read artifact")
	}
	r := &Record{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, errs.Wrap(err, "can not unmarshal artifact")
	}
	if err := r.Valid(); err != nil {
		return nil, err
	}
	return r, nil
}

// WriteZstd writes the record as zstd-compressed JSON.
func WriteZstd(w io.Writer, r *Record) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return errs.Wrap(err, "can not create zstd writer")
	}
	if err := WriteJSON(zw, r); err != nil {
		_ = zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return errs.Wrap(err, "can not finish zstd stream")
	}
	return nil
}

// ReadZstd decodes and validates a zstd-compressed record.
func ReadZstd(rd io.Reader) (*Record, error) {
	zr, err := zstd.NewReader(rd)
	if err != nil {
		return nil, errs.Wrap(err, "can not create zstd reader")
	}
	defer zr.Close()
	return ReadJSON(zr)
}

// Read sniffs the encoding from the stream's magic bytes and dispatches
// to the matching reader, so loaders need not care how a record was
// archived.
func Read(rd io.Reader) (*Record, error) {
	head := make([]byte, 4)
	n, err := io.ReadFull(rd, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, errs.Wrap(err, "can not read artifact header")
	}
	rest := io.MultiReader(bytes.NewReader(head[:n]), rd)
	if n == 4 && bytes.Equal(head, []byte{0x28, 0xb5, 0x2f, 0xfd}) {
		return ReadZstd(rest)
	}
	return ReadJSON(rest)
}
