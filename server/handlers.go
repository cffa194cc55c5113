package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/hubenschmidt/go-pagesearch"
	"github.com/hubenschmidt/go-pagesearch/search"
	"github.com/hubenschmidt/go-pagesearch/server/store"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{Message: "HTML Search Backend API", Version: Version})
}

func (s *Server) handleIndexURL(w http.ResponseWriter, r *http.Request) {
	var req IndexURLRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, r, http.StatusBadRequest, "url is required")
		return
	}

	start := time.Now()
	res, err := s.pipeline.IndexURL(r.Context(), req.URL)
	runID := s.recordRun(r, req.URL, res, err, time.Since(start))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, IndexURLResponse{
		Message:     "URL indexed successfully",
		URL:         res.URL,
		TotalChunks: res.TotalChunks,
		TotalTokens: res.TotalTokens,
		RunID:       runID,
	})
}

// recordRun stores the outcome of an index request. Ledger failures are
// logged and never fail the request.
func (s *Server) recordRun(r *http.Request, rawURL string, res pagesearch.IndexResult, err error, elapsed time.Duration) string {
	if s.runs == nil {
		return ""
	}

	run := store.IndexRun{
		SourceKey:   res.URL,
		TotalChunks: res.TotalChunks,
		TotalTokens: res.TotalTokens,
		ElapsedMs:   elapsed.Milliseconds(),
	}
	if run.SourceKey == "" {
		run.SourceKey = pagesearch.SourceKey(rawURL)
	}
	if err != nil {
		run.Status = store.StatusFailed
		run.Error = err.Error()
	}

	saved, addErr := s.runs.Add(r.Context(), run)
	if addErr != nil {
		s.logger.Warn().Err(addErr).Str("request_id", RequestID(r.Context())).Msg("record index run")
		return ""
	}
	return saved.RunID
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Limit < 0 {
		writeError(w, r, http.StatusBadRequest, "limit must not be negative")
		return
	}

	resp, err := s.pipeline.Search(r.Context(), search.Query{
		Text:      req.Query,
		SourceKey: req.URL,
		Limit:     req.Limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Query:        resp.Query,
		Results:      resp.Results,
		TotalMatches: resp.TotalMatches,
	})
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if strings.TrimSpace(raw) == "" {
		writeError(w, r, http.StatusBadRequest, "url query parameter is required")
		return
	}

	n, err := s.pipeline.DeleteSource(r.Context(), raw)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteSourceResponse{URL: pagesearch.SourceKey(raw), Deleted: n})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.pipeline.Health(r.Context())
	status := http.StatusOK
	if report.Status != pagesearch.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusOK, RunListResponse{Runs: []IndexRun{}})
		return
	}

	opts := store.ListOptions{}
	if raw := r.URL.Query().Get("url"); raw != "" {
		opts.SourceKey = pagesearch.SourceKey(raw)
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = n
	}

	runs, err := s.runs.List(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusOK, RunSummary{})
		return
	}
	sum, err := s.runs.Summary(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, r, http.StatusNotFound, "run not found")
		return
	}
	run, err := s.runs.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunDelete(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, r, http.StatusNotFound, "run not found")
		return
	}
	id := mux.Vars(r)["id"]
	err := s.runs.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteRunResponse{RunID: id, Success: true})
}

// fail maps a pipeline error to a status: caller mistakes and unreachable
// pages are 400, everything else 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if pagesearch.IsClientError(err) {
		status = http.StatusBadRequest
	}
	s.logger.Error().
		Err(err).
		Str("request_id", RequestID(r.Context())).
		Int("status", status).
		Msg("request failed")
	writeError(w, r, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, RequestID: RequestID(r.Context())})
}
