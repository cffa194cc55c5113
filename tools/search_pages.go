package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/hubenschmidt/go-pagesearch/search"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type SearchPagesInput struct {
	Query string `json:"query" jsonschema:"What to search for"`
	URL   string `json:"url,omitempty" jsonschema:"Only search chunks of this page (optional)"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of results (optional, defaults to 5)"`
}

type SearchPagesOutput struct {
	Query        string              `json:"query"`
	Results      []core.SearchResult `json:"results"`
	TotalMatches int                 `json:"total_matches"`
}

const defaultToolLimit = 5

func (t *Toolset) SearchPages(ctx context.Context, req *mcp.CallToolRequest, input SearchPagesInput) (*mcp.CallToolResult, SearchPagesOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultToolLimit
	}

	resp, err := t.pipeline.Search(ctx, search.Query{Text: input.Query, SourceKey: input.URL, Limit: limit})
	if err != nil {
		t.logger.Warn().Err(err).Str("tool", "search_pages").Str("query", input.Query).Msg("tool failed")
		return nil, SearchPagesOutput{}, fmt.Errorf("search: %w", err)
	}

	out := SearchPagesOutput{Query: resp.Query, Results: resp.Results, TotalMatches: resp.TotalMatches}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: formatResults(out.Results)}}}, out, nil
}

func formatResults(results []core.SearchResult) string {
	if len(results) == 0 {
		return "No matching chunks found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d relevant chunks:\n\n", len(results))
	for _, r := range results {
		fmt.Fprintf(&sb, "--- #%d %s chunk %d (distance: %.3f) ---\n", r.RelevanceRank, r.SourceKey, r.Chunk.ChunkID, r.Score)
		sb.WriteString(r.Chunk.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
