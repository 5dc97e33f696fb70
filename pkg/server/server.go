// Copyright 2025 Screentape, Inc.
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

// Package server exposes a local control surface for a running session:
// status, stop, an event feed, and debug handlers.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/frostbyte73/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/screentape/screentape/pkg/config"
	"github.com/screentape/screentape/pkg/errors"
	"github.com/screentape/screentape/pkg/info"
	"github.com/screentape/screentape/pkg/logger"
	"github.com/screentape/screentape/pkg/pprof"
	"github.com/screentape/screentape/pkg/types"
)

const shutdownTimeout = time.Second * 5

// Session is the handle the control server drives. Satisfied by
// session.Controller.
type Session interface {
	Snapshot() info.SessionInfo
	Stop(ctx context.Context, reason types.StopReason)
	Stopped() <-chan struct{}
}

type Server struct {
	conf    *config.Config
	session Session
	dot     func() string

	controlServer *http.Server
	promServer    *http.Server

	shutdown core.Fuse
}

// New builds the control and metrics servers. dot may be nil if no pipeline
// graph is available.
func New(conf *config.Config, session Session, dot func() string) *Server {
	s := &Server{
		conf:    conf,
		session: session,
		dot:     dot,
	}

	if conf.ControlPort > 0 {
		// control endpoints are not authenticated, bind loopback only
		s.controlServer = &http.Server{
			Addr:    fmt.Sprintf("localhost:%d", conf.ControlPort),
			Handler: s.controlHandler(),
		}
	}

	if conf.PrometheusPort > 0 {
		s.promServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", conf.PrometheusPort),
			Handler: promhttp.Handler(),
		}
	}

	return s
}

func (s *Server) controlHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/stop", s.handleStop)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/debug/pprof/", s.handlePProf)
	mux.HandleFunc("/debug/dot", s.handleDot)
	return mux
}

func (s *Server) Start() error {
	if s.controlServer != nil {
		l, err := net.Listen("tcp", s.controlServer.Addr)
		if err != nil {
			return err
		}
		go func() {
			_ = s.controlServer.Serve(l)
		}()
		logger.Infow("control server started", "addr", s.controlServer.Addr)
	}

	if s.promServer != nil {
		l, err := net.Listen("tcp", s.promServer.Addr)
		if err != nil {
			return err
		}
		go func() {
			_ = s.promServer.Serve(l)
		}()
		logger.Debugw("prometheus server started", "addr", s.promServer.Addr)
	}

	return nil
}

func (s *Server) Stop() {
	s.shutdown.Once(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if s.controlServer != nil {
			_ = s.controlServer.Shutdown(ctx)
		}
		if s.promServer != nil {
			_ = s.promServer.Shutdown(ctx)
		}
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.session.Snapshot()
	writeJSON(w, http.StatusOK, &snap)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger.Infow("stop requested")
	// Stop blocks through finalization, run it off the request handler. The
	// caller follows progress via /status or /events.
	go s.session.Stop(context.Background(), types.StopRequested)

	snap := s.session.Snapshot()
	writeJSON(w, http.StatusAccepted, &snap)
}

// URL path format is "/debug/pprof/<profile_name>"
func (s *Server) handlePProf(w http.ResponseWriter, r *http.Request) {
	timeout, _ := strconv.Atoi(r.URL.Query().Get("timeout"))
	debug, _ := strconv.Atoi(r.URL.Query().Get("debug"))

	pathElements := strings.Split(r.URL.Path, "/")
	if len(pathElements) < 4 || pathElements[3] == "" {
		http.Error(w, "missing profile name", http.StatusNotFound)
		return
	}

	b, err := pprof.GetProfileData(r.Context(), pathElements[3], timeout, debug)
	if err != nil {
		if errors.Is(err, errors.ErrProfileNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Add("Content-Type", "application/octet-stream")
	_, _ = w.Write(b)
}

func (s *Server) handleDot(w http.ResponseWriter, _ *http.Request) {
	if s.dot == nil {
		http.Error(w, "no pipeline", http.StatusNotFound)
		return
	}
	_, _ = w.Write([]byte(s.dot()))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnw("failed to write response", err)
	}
}
