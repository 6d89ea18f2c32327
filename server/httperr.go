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
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zintix-labs/monocal/errs"
)

// StatusCode maps an error to an HTTP status. The mapping lives at the
// HTTP boundary, not in errs, so the core error package never depends
// on net/http.
//
//   - ctx timeout/cancel → 504/408 (request lifecycle)
//   - errs.Warn          → 400 (caller/parameter problem)
//   - errs.Fatal         → 500 (system problem)
func StatusCode(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}

	status := http.StatusInternalServerError
	var e *errs.E
	if errors.As(err, &e) {
		switch e.ErrLv {
		case errs.Warn:
			status = http.StatusBadRequest
		case errs.Fatal:
			status = http.StatusInternalServerError
		}
	}
	return status
}

// writeErr maps the error to a status, writes a plain http.Error and
// logs server-side failures. Caller errors (4xx) are not logged as
// errors; the access log already records them.
func writeErr(log *slog.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	status := StatusCode(err)
	if log != nil && status >= 500 {
		log.Error("handler err", slog.Any("err", err))
	}
	http.Error(w, err.Error(), status)
}
