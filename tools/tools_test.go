package tools_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hubenschmidt/go-pagesearch"
	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/hubenschmidt/go-pagesearch/search"
	"github.com/hubenschmidt/go-pagesearch/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPipeline struct {
	indexErr  error
	searchErr error
	lastQuery search.Query
	health    pagesearch.HealthReport
}

func (p *stubPipeline) IndexURL(ctx context.Context, rawURL string) (pagesearch.IndexResult, error) {
	if p.indexErr != nil {
		return pagesearch.IndexResult{}, p.indexErr
	}
	return pagesearch.IndexResult{URL: rawURL, TotalChunks: 3, TotalTokens: 42}, nil
}

func (p *stubPipeline) Search(ctx context.Context, q search.Query) (*search.Response, error) {
	p.lastQuery = q
	if p.searchErr != nil {
		return nil, p.searchErr
	}
	results := []core.SearchResult{
		{SourceKey: "https://example.com/a", Chunk: core.Chunk{ChunkID: 4, Content: "gophers dig"}, Score: 0.25, RelevanceRank: 1},
		{SourceKey: "https://example.com/a", Chunk: core.Chunk{ChunkID: 1, Content: "gophers eat"}, Score: 0.5, RelevanceRank: 2},
	}
	return &search.Response{Query: q.Text, Results: results, TotalMatches: len(results)}, nil
}

func (p *stubPipeline) Health(ctx context.Context) pagesearch.HealthReport {
	return p.health
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestIndexURL(t *testing.T) {
	ts := tools.NewToolset(&stubPipeline{}, zerolog.Nop())

	res, out, err := ts.IndexURL(context.Background(), nil, tools.IndexURLInput{URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.Equal(t, tools.IndexURLOutput{URL: "https://example.com/a", TotalChunks: 3, TotalTokens: 42}, out)
	assert.Equal(t, "Indexed https://example.com/a: 3 chunks, 42 tokens.", text(t, res))

	failing := tools.NewToolset(&stubPipeline{indexErr: core.ErrFetchOrParse}, zerolog.Nop())
	_, _, err = failing.IndexURL(context.Background(), nil, tools.IndexURLInput{URL: "https://example.com/blank"})
	assert.ErrorIs(t, err, core.ErrFetchOrParse)
	assert.Contains(t, err.Error(), "https://example.com/blank")
}

func TestSearchPages(t *testing.T) {
	p := &stubPipeline{}
	ts := tools.NewToolset(p, zerolog.Nop())

	res, out, err := ts.SearchPages(context.Background(), nil, tools.SearchPagesInput{Query: "gophers", URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.Equal(t, search.Query{Text: "gophers", SourceKey: "https://example.com/a", Limit: 5}, p.lastQuery)
	assert.Equal(t, 2, out.TotalMatches)
	require.Len(t, out.Results, 2)
	assert.Equal(t, 4, out.Results[0].Chunk.ChunkID)

	body := text(t, res)
	assert.Contains(t, body, "Found 2 relevant chunks")
	assert.Contains(t, body, "#1 https://example.com/a chunk 4 (distance: 0.250)")
	assert.Contains(t, body, "gophers eat")

	_, _, err = ts.SearchPages(context.Background(), nil, tools.SearchPagesInput{Query: "gophers", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 20, p.lastQuery.Limit)
}

func TestSearchPagesFailure(t *testing.T) {
	ts := tools.NewToolset(&stubPipeline{searchErr: core.ErrSearchUnavailable}, zerolog.Nop())
	_, _, err := ts.SearchPages(context.Background(), nil, tools.SearchPagesInput{Query: "gophers"})
	assert.ErrorIs(t, err, core.ErrSearchUnavailable)
}

func TestCollectionHealth(t *testing.T) {
	healthy := &stubPipeline{health: pagesearch.HealthReport{
		Status:          pagesearch.StatusHealthy,
		VectorDB:        pagesearch.VectorDBConnected,
		CollectionStats: core.CollectionStats{CollectionName: "html_chunks", TotalEntities: 12},
	}}
	res, out, err := tools.NewToolset(healthy, zerolog.Nop()).CollectionHealth(context.Background(), nil, tools.CollectionHealthInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(12), out.TotalEntities)
	assert.Equal(t, "healthy: collection html_chunks holds 12 chunks (vector db connected)", text(t, res))

	down := &stubPipeline{health: pagesearch.HealthReport{
		Status:   pagesearch.StatusUnhealthy,
		VectorDB: pagesearch.VectorDBDisconnected,
		Error:    "connection refused",
	}}
	res, out, err = tools.NewToolset(down, zerolog.Nop()).CollectionHealth(context.Background(), nil, tools.CollectionHealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "connection refused", out.Error)
	assert.Equal(t, "unhealthy: connection refused", text(t, res))
}

func TestServerOverInMemoryTransport(t *testing.T) {
	ctx := context.Background()
	server := tools.NewServer(&stubPipeline{indexErr: errors.New("boom")}, "test", zerolog.Nop())

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	list, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"index_url", "search_pages", "collection_health"}, names)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_pages",
		Arguments: map[string]any{"query": "gophers"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, text(t, res), "Found 2 relevant chunks")

	res, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "index_url",
		Arguments: map[string]any{"url": "https://example.com/a"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
