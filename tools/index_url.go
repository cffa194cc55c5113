package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type IndexURLInput struct {
	URL string `json:"url" jsonschema:"The http or https URL of the page to index"`
}

type IndexURLOutput struct {
	URL         string `json:"url"`
	TotalChunks int    `json:"total_chunks"`
	TotalTokens int    `json:"total_tokens"`
}

// IndexURL fetches and indexes one page, replacing what was stored for it.
func (t *Toolset) IndexURL(ctx context.Context, req *mcp.CallToolRequest, input IndexURLInput) (*mcp.CallToolResult, IndexURLOutput, error) {
	res, err := t.pipeline.IndexURL(ctx, input.URL)
	if err != nil {
		t.logger.Warn().Err(err).Str("tool", "index_url").Str("url", input.URL).Msg("tool failed")
		return nil, IndexURLOutput{}, fmt.Errorf("index %s: %w", input.URL, err)
	}

	out := IndexURLOutput{URL: res.URL, TotalChunks: res.TotalChunks, TotalTokens: res.TotalTokens}
	text := fmt.Sprintf("Indexed %s: %d chunks, %d tokens.", out.URL, out.TotalChunks, out.TotalTokens)
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, out, nil
}
