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

package artifact_test

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/zintix-labs/monocal/artifact"
	"github.com/zintix-labs/monocal/calib"
	"github.com/zintix-labs/monocal/sdk/core"
	"github.com/zintix-labs/monocal/spec"
)

func testRecord(t *testing.T) *artifact.Record {
	t.Helper()
	set, err := spec.GetCalibSettingByYAML([]byte(`
factor_a: {name: gpa, anchor: 3.0, x_min: 2.0, x_max: 4.0}
factor_b: {name: mcat, anchor: 500, x_min: 486, x_max: 528}
`))
	if err != nil {
		t.Fatalf("setting failed: %v", err)
	}
	cells := []calib.Cell{
		{LevelA: 3.0, LevelB: 500, Rate: 0.10, Weight: 1},
		{LevelA: 3.0, LevelB: 515, Rate: 0.20, Weight: 1},
		{LevelA: 3.8, LevelB: 500, Rate: 0.25, Weight: 1},
		{LevelA: 3.8, LevelB: 515, Rate: 0.45, Weight: 1},
	}
	res, err := calib.Calibrate(cells, set, core.NewWithSeed(3))
	if err != nil {
		t.Fatalf("calibrate failed: %v", err)
	}
	return artifact.New(set, res)
}

func TestJSONRoundtrip(t *testing.T) {
	rec := testRecord(t)
	var buf bytes.Buffer
	if err := artifact.WriteJSON(&buf, rec); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got, err := artifact.ReadJSON(&buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.GlobalIntercept != rec.GlobalIntercept {
		t.Fatalf("intercept changed in roundtrip: %g vs %g", got.GlobalIntercept, rec.GlobalIntercept)
	}
	for i := range rec.CurveA.Coefficients {
		if got.CurveA.Coefficients[i] != rec.CurveA.Coefficients[i] {
			t.Fatalf("curve a coefficient %d changed in roundtrip", i)
		}
	}
}

func TestZstdRoundtrip(t *testing.T) {
	rec := testRecord(t)
	var buf bytes.Buffer
	if err := artifact.WriteZstd(&buf, rec); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got, err := artifact.ReadZstd(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.GlobalIntercept != rec.GlobalIntercept {
		t.Fatalf("intercept changed in zstd roundtrip")
	}
}

func TestReadSniffsEncoding(t *testing.T) {
	rec := testRecord(t)

	var plain bytes.Buffer
	if err := artifact.WriteJSON(&plain, rec); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := artifact.Read(&plain); err != nil {
		t.Fatalf("sniffing plain json failed: %v", err)
	}

	var comp bytes.Buffer
	if err := artifact.WriteZstd(&comp, rec); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := artifact.Read(&comp); err != nil {
		t.Fatalf("sniffing zstd failed: %v", err)
	}
}

// The JSON keys are a published contract; renaming any of them breaks
// every downstream consumer.
func TestJSONKeyStability(t *testing.T) {
	rec := testRecord(t)
	var buf bytes.Buffer
	if err := artifact.WriteJSON(&buf, rec); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	out := buf.String()
	for _, key := range []string{
		`"version"`, `"created_at"`, `"factor_a"`, `"factor_b"`,
		`"curve_a"`, `"curve_b"`, `"global_intercept"`, `"calibration"`,
		`"coefficients"`, `"intercept"`, `"n_basis"`, `"degree"`,
		`"x_min"`, `"x_max"`, `"knots"`,
		`"rmse"`, `"r2"`, `"a_monotone"`, `"b_monotone"`, `"converged"`,
	} {
		if !strings.Contains(out, key) {
			t.Fatalf("artifact json lost key %s", key)
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("artifact is not an object: %v", err)
	}
}

func TestRecordValid(t *testing.T) {
	rec := testRecord(t)
	if err := rec.Valid(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
	rec.CurveA = nil
	if err := rec.Valid(); err == nil {
		t.Fatalf("record without curve accepted")
	}
}

func TestEval(t *testing.T) {
	rec := testRecord(t)
	// At both anchors the curves are zero: the prediction is the
	// sigmoid of the global intercept alone.
	p := rec.Eval(3.0, 500)
	want := calib.Sigmoid(rec.GlobalIntercept)
	if math.Abs(p-want) > 1e-9 {
		t.Fatalf("anchor eval %g, want %g", p, want)
	}
	// Higher inputs can never lower the prediction.
	if rec.Eval(3.8, 515) < p {
		t.Fatalf("prediction decreased with higher inputs")
	}
}
