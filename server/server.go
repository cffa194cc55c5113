// Package server exposes the indexing and search pipelines over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hubenschmidt/go-pagesearch"
	"github.com/hubenschmidt/go-pagesearch/search"
	"github.com/hubenschmidt/go-pagesearch/server/store"
	"github.com/rs/zerolog"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Pipeline is the part of pagesearch.Service the API serves.
type Pipeline interface {
	IndexURL(ctx context.Context, rawURL string) (pagesearch.IndexResult, error)
	Search(ctx context.Context, q search.Query) (*search.Response, error)
	DeleteSource(ctx context.Context, sourceKey string) (int, error)
	Health(ctx context.Context) pagesearch.HealthReport
}

// Config configures a new Server instance.
type Config struct {
	Pipeline Pipeline
	Runs     store.RunStore // Optional: index runs are not recorded when nil
	Logger   zerolog.Logger
}

// Server is the HTTP API of pagesearch.
type Server struct {
	pipeline Pipeline
	runs     store.RunStore
	logger   zerolog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("server: pipeline is required")
	}
	return &Server{
		pipeline: cfg.Pipeline,
		runs:     cfg.Runs,
		logger:   cfg.Logger,
	}, nil
}

// Close closes the run store.
func (s *Server) Close() error {
	if s.runs == nil {
		return nil
	}
	return s.runs.Close()
}

// Handler returns an http.Handler for the API routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, s.accessLogMiddleware)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/index-url", s.handleIndexURL).Methods(http.MethodPost)
	api.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	api.HandleFunc("/sources", s.handleDeleteSource).Methods(http.MethodDelete)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api.HandleFunc("/runs", s.handleRunList).Methods(http.MethodGet)
	api.HandleFunc("/runs/summary", s.handleRunSummary).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleRunGet).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleRunDelete).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	return corsMiddleware(r)
}
