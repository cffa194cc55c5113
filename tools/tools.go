// Package tools exposes the pipelines as Model Context Protocol tools.
package tools

import (
	"context"

	"github.com/hubenschmidt/go-pagesearch"
	"github.com/hubenschmidt/go-pagesearch/search"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
)

const ServerName = "pagesearch"

// Pipeline is the part of pagesearch.Service the tools call.
type Pipeline interface {
	IndexURL(ctx context.Context, rawURL string) (pagesearch.IndexResult, error)
	Search(ctx context.Context, q search.Query) (*search.Response, error)
	Health(ctx context.Context) pagesearch.HealthReport
}

// Toolset holds the tool handlers.
type Toolset struct {
	pipeline Pipeline
	logger   zerolog.Logger
}

func NewToolset(p Pipeline, logger zerolog.Logger) *Toolset {
	return &Toolset{pipeline: p, logger: logger}
}

// Register adds index_url, search_pages and collection_health to server.
func (t *Toolset) Register(server *mcp.Server) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "index_url",
			Description: "Fetch a web page, split its text into chunks and store their embeddings for semantic search.",
		},
		t.IndexURL,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "search_pages",
			Description: "Semantic search over indexed web pages. Optionally restrict the search to one page URL.",
		},
		t.SearchPages,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "collection_health",
			Description: "Report whether the vector store is reachable and how many chunks are indexed.",
		},
		t.CollectionHealth,
	)
}

// NewServer builds an MCP server with every tool registered.
func NewServer(p Pipeline, version string, logger zerolog.Logger) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version,
		},
		nil,
	)
	NewToolset(p, logger).Register(server)
	return server
}
