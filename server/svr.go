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

// Package server exposes calibration over HTTP: run a calibration,
// inspect the loaded artifact, and evaluate the calibrated model.
//
// The server is an assembler: all dependencies (logger, artifact, seed)
// are injected through Config, nothing is read from the environment.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zintix-labs/monocal/artifact"
	"github.com/zintix-labs/monocal/errs"
)

const defaultAddr = ":5810"

// Config carries the server's injected dependencies.
type Config struct {
	Addr string
	Log  *slog.Logger
	// Record is the artifact served by /v1/record and /v1/eval; nil
	// means no artifact is loaded and those routes answer 400.
	Record *artifact.Record
	// Seed feeds the per-request calibration cores. Zero means each
	// request draws its own seed.
	Seed int64
}

// Valid checks the injected dependencies.
func (c *Config) Valid() error {
	if c == nil {
		return errs.NewFatal("server config is required")
	}
	if c.Log == nil {
		return errs.NewFatal("server config: logger is required")
	}
	return nil
}

// Server wraps an http.Server with a chi router and graceful shutdown.
type Server struct {
	cfg    *Config
	router chi.Router
	server *http.Server
}

// New assembles a Server: middleware first, then routes.
func New(cfg *Config) (*Server, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	addr := cfg.Addr
	if addr == "" {
		addr = defaultAddr
	}
	r := chi.NewRouter()
	s := &Server{
		cfg:    cfg,
		router: r,
		server: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
	s.registerMiddleware()
	s.registerRoutes()
	return s, nil
}

// Address returns the listen address.
func (s *Server) Address() string {
	return s.server.Addr
}

// Handler exposes the assembled router, mainly for tests and for
// callers mounting the routes into an existing server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run blocks until the listener fails or a SIGINT/SIGTERM arrives, then
// shuts down gracefully. An OS signal is a normal stop and returns nil.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		s.shutdown(5 * time.Second)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) shutdown(td time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), td)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.cfg.Log.Error("shutdown err", slog.Any("err", err))
	}
}

func (s *Server) registerMiddleware() {
	s.router.Use(RequestID)
	s.router.Use(AccessLog(s.cfg.Log))
	s.router.Use(Recover)
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.healthz)
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/record", s.getRecord)
		r.Post("/eval", s.postEval)
		r.Post("/calibrate", s.postCalibrate)
	})
}
