package tools

import (
	"context"
	"fmt"

	"github.com/hubenschmidt/go-pagesearch"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type CollectionHealthInput struct{}

type CollectionHealthOutput struct {
	Status         string `json:"status"`
	VectorDB       string `json:"vector_db"`
	CollectionName string `json:"collection_name"`
	TotalEntities  int64  `json:"total_entities"`
	Error          string `json:"error,omitempty"`
}

// CollectionHealth never fails the call; an unreachable store is reported in
// the output.
func (t *Toolset) CollectionHealth(ctx context.Context, req *mcp.CallToolRequest, input CollectionHealthInput) (*mcp.CallToolResult, CollectionHealthOutput, error) {
	report := t.pipeline.Health(ctx)
	out := CollectionHealthOutput{
		Status:         report.Status,
		VectorDB:       report.VectorDB,
		CollectionName: report.CollectionStats.CollectionName,
		TotalEntities:  report.CollectionStats.TotalEntities,
		Error:          report.Error,
	}

	text := fmt.Sprintf("%s: collection %s holds %d chunks (vector db %s)", out.Status, out.CollectionName, out.TotalEntities, out.VectorDB)
	if out.Status != pagesearch.StatusHealthy {
		text = fmt.Sprintf("%s: %s", out.Status, out.Error)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, out, nil
}
