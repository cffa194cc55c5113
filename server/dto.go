package server

import (
	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/hubenschmidt/go-pagesearch/server/store"
)

// Re-export types from store package
type (
	IndexRun   = store.IndexRun
	RunSummary = store.RunSummary
)

type IndexURLRequest struct {
	URL string `json:"url"`
}

type IndexURLResponse struct {
	Message     string `json:"message"`
	URL         string `json:"url"`
	TotalChunks int    `json:"total_chunks"`
	TotalTokens int    `json:"total_tokens"`
	RunID       string `json:"run_id,omitempty"`
}

// SearchRequest restricts the query to one page when URL is set.
type SearchRequest struct {
	Query string `json:"query"`
	URL   string `json:"url,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type SearchResponse struct {
	Query        string              `json:"query"`
	Results      []core.SearchResult `json:"results"`
	TotalMatches int                 `json:"total_matches"`
}

type DeleteSourceResponse struct {
	URL     string `json:"url"`
	Deleted int    `json:"deleted"`
}

type DeleteRunResponse struct {
	RunID   string `json:"run_id"`
	Success bool   `json:"success"`
}

type RunListResponse struct {
	Runs []IndexRun `json:"runs"`
}

type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
