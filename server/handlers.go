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

package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/zintix-labs/monocal/artifact"
	"github.com/zintix-labs/monocal/calib"
	"github.com/zintix-labs/monocal/errs"
	"github.com/zintix-labs/monocal/sdk/core"
	"github.com/zintix-labs/monocal/spec"
)

// maxBodyBytes caps request bodies; calibration inputs are small tables.
const maxBodyBytes = 8 << 20

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) getRecord(w http.ResponseWriter, _ *http.Request) {
	if s.cfg.Record == nil {
		writeErr(s.cfg.Log, w, errs.NewWarn("no artifact loaded"))
		return
	}
	writeJSON(s.cfg.Log, w, s.cfg.Record)
}

// evalRequest evaluates the loaded model at paired inputs.
type evalRequest struct {
	A []float64 `json:"a"`
	B []float64 `json:"b"`
}

type evalResponse struct {
	Probs []float64 `json:"probs"`
}

func (s *Server) postEval(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Record == nil {
		writeErr(s.cfg.Log, w, errs.NewWarn("no artifact loaded"))
		return
	}
	req := &evalRequest{}
	if err := decodeBody(r, req); err != nil {
		writeErr(s.cfg.Log, w, err)
		return
	}
	if len(req.A) == 0 || len(req.A) != len(req.B) {
		writeErr(s.cfg.Log, w, errs.Warnf("eval err: a and b must be equal-length and non-empty (%d vs %d)", len(req.A), len(req.B)))
		return
	}
	resp := &evalResponse{Probs: make([]float64, len(req.A))}
	for i := range req.A {
		resp.Probs[i] = s.cfg.Record.Eval(req.A[i], req.B[i])
	}
	writeJSON(s.cfg.Log, w, resp)
}

// calibrateRequest is a full calibration run: settings plus the
// observation table. Seed zero means the server picks one.
type calibrateRequest struct {
	Setting json.RawMessage `json:"setting"`
	Cells   []calib.Cell    `json:"cells"`
	Seed    int64           `json:"seed"`
}

func (s *Server) postCalibrate(w http.ResponseWriter, r *http.Request) {
	req := &calibrateRequest{}
	if err := decodeBody(r, req); err != nil {
		writeErr(s.cfg.Log, w, err)
		return
	}
	if len(req.Setting) == 0 {
		writeErr(s.cfg.Log, w, errs.NewWarn("calibrate err: setting is required"))
		return
	}
	set, err := spec.GetCalibSettingByJSON(req.Setting)
	if err != nil {
		// Setting problems are the caller's fault at this boundary,
		// whatever level the spec package graded them.
		writeErr(s.cfg.Log, w, errs.NewWithExtra(errs.Warn, "bad setting", err.Error()))
		return
	}

	c := s.newCore(req.Seed)
	res, err := calib.Calibrate(req.Cells, set, c)
	if err != nil {
		writeErr(s.cfg.Log, w, err)
		return
	}
	writeJSON(s.cfg.Log, w, artifact.New(set, res))
}

// newCore picks the request seed, falling back to the configured seed,
// falling back to a fresh random one.
func (s *Server) newCore(reqSeed int64) *core.Core {
	switch {
	case reqSeed > 0:
		return core.NewWithSeed(reqSeed)
	case s.cfg.Seed > 0:
		return core.NewWithSeed(s.cfg.Seed)
	default:
		return core.NewDefault()
	}
}

func decodeBody(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	defer func() { _ = body.Close() }()
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		// Malformed bodies are the caller's problem.
		return errs.NewWithExtra(errs.Warn, "can not decode request body", err.Error())
	}
	return nil
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil && log != nil {
		log.Error("can not encode response", slog.Any("err", err))
	}
}
