/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/GoogleCloudPlatform/db-query-playground/internal/config"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/playground"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/query"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies; notebook cells are the largest payloads.
const maxBodyBytes = 4 << 20

var defaultOrigins = []string{"http://localhost:3000", "https://*.amplifyapp.com"}

// Server exposes the playground service over HTTP.
type Server struct {
	svc      *playground.Service
	gatherer prometheus.Gatherer
	cfg      config.ServerConfig
	logger   *zap.Logger
}

// New builds a server. gatherer may be nil, in which case /metrics is not mounted.
func New(svc *playground.Service, gatherer prometheus.Gatherer, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, gatherer: gatherer, cfg: cfg, logger: logger}
}

// Addr is the listen address from the configuration.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	origins := append([]string{}, defaultOrigins...)
	if s.cfg.CORSOrigin != "" {
		origins = append(origins, s.cfg.CORSOrigin)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	prefix := s.cfg.APIPrefix
	if prefix == "" || prefix == "/" {
		s.routes(r)
	} else {
		r.Route(prefix, s.routes)
	}
	s.logger.Info("API base path", zap.String("prefix", prefix))
	return r
}

func (s *Server) routes(r chi.Router) {
	r.Get("/", s.healthCheck)
	r.Post("/session/create", s.createSession)
	r.Post("/session/verify", s.verifySession)
	r.Post("/notebook/cell/sql_execute", s.executeSQL)
	r.Post("/data/preview", s.preview)
	r.Post("/data/column/list_values", s.listColumnValues)
	r.Post("/data/query", s.query)
}

func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
}

type verifySessionRequest struct {
	SessionID string `json:"sessionId"`
}

type executeSQLRequest struct {
	SessionID string `json:"sessionId"`
	SQL       string `json:"sql"`
}

// Sessions carry no server side state; any non-empty id is accepted.
func (s *Server) createSession(w http.ResponseWriter, _ *http.Request) {
	id := uuid.NewString()
	s.logger.Info("Creating new session", zap.String("session_id", id))
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id})
}

func (s *Server) verifySession(w http.ResponseWriter, r *http.Request) {
	var req verifySessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusUnauthorized, "Session is invalid")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isValid": true})
}

func (s *Server) executeSQL(w http.ResponseWriter, r *http.Request) {
	var req executeSQLRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusUnauthorized, "Session is invalid")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.ExecuteSQL(r.Context(), req.SQL))
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	var req playground.PreviewRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.Preview(r.Context(), req)
	s.respond(w, res, err)
}

func (s *Server) listColumnValues(w http.ResponseWriter, r *http.Request) {
	var req playground.ListColumnValuesRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.ListColumnValues(r.Context(), req)
	s.respond(w, res, err)
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req query.QueryRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.Query(r.Context(), req)
	s.respond(w, res, err)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, v any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, v)
		return
	}
	var invalid *playground.ErrInvalidInput
	if errors.As(err, &invalid) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
