package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hubenschmidt/go-pagesearch/server/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]store.RunStore {
	t.Helper()
	stores := map[string]store.RunStore{}

	s, err := store.NewRunStore(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	stores["sqlite"] = s

	if dsn := os.Getenv("PAGESEARCH_TEST_POSTGRES_DSN"); dsn != "" {
		pg, err := store.NewRunStore(dsn)
		require.NoError(t, err)
		t.Cleanup(func() { pg.Close() })
		clearRuns(t, pg)
		stores["postgres"] = pg
	}
	return stores
}

func clearRuns(t *testing.T, s store.RunStore) {
	t.Helper()
	runs, err := s.List(context.Background(), store.ListOptions{Limit: 10000})
	require.NoError(t, err)
	for _, r := range runs {
		require.NoError(t, s.Delete(context.Background(), r.RunID))
	}
}

func TestRunStore(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			empty, err := s.Summary(ctx)
			require.NoError(t, err)
			assert.Equal(t, store.RunSummary{}, empty)

			list, err := s.List(ctx, store.ListOptions{})
			require.NoError(t, err)
			assert.NotNil(t, list)
			assert.Empty(t, list)

			a, err := s.Add(ctx, store.IndexRun{SourceKey: "https://a.example/", TotalChunks: 4, TotalTokens: 400, ElapsedMs: 30, Timestamp: 1000})
			require.NoError(t, err)
			assert.NotEmpty(t, a.RunID)
			assert.Equal(t, store.StatusSucceeded, a.Status)

			_, err = s.Add(ctx, store.IndexRun{SourceKey: "https://b.example/", Error: "status 404", ElapsedMs: 10, Timestamp: 2000})
			require.NoError(t, err)
			c, err := s.Add(ctx, store.IndexRun{SourceKey: "https://a.example/", TotalChunks: 2, TotalTokens: 150, ElapsedMs: 20, Timestamp: 3000})
			require.NoError(t, err)

			got, err := s.Get(ctx, a.RunID)
			require.NoError(t, err)
			assert.Equal(t, a, got)

			_, err = s.Get(ctx, "no-such-run")
			assert.ErrorIs(t, err, store.ErrNotFound)

			all, err := s.List(ctx, store.ListOptions{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []int64{3000, 2000, 1000}, []int64{all[0].Timestamp, all[1].Timestamp, all[2].Timestamp})
			assert.Equal(t, store.StatusFailed, all[1].Status)
			assert.Equal(t, "status 404", all[1].Error)

			onlyA, err := s.List(ctx, store.ListOptions{SourceKey: "https://a.example/"})
			require.NoError(t, err)
			require.Len(t, onlyA, 2)
			assert.Equal(t, c.RunID, onlyA[0].RunID)

			latest, err := s.List(ctx, store.ListOptions{Limit: 1})
			require.NoError(t, err)
			require.Len(t, latest, 1)
			assert.Equal(t, c.RunID, latest[0].RunID)

			sum, err := s.Summary(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, sum.TotalRuns)
			assert.Equal(t, 1, sum.FailedRuns)
			assert.Equal(t, 2, sum.Sources)
			assert.Equal(t, int64(6), sum.TotalChunks)
			assert.Equal(t, int64(550), sum.TotalTokens)
			assert.InDelta(t, 20.0, sum.AvgLatencyMs, 1e-9)

			require.NoError(t, s.Delete(ctx, a.RunID))
			assert.ErrorIs(t, s.Delete(ctx, a.RunID), store.ErrNotFound)
		})
	}
}

func TestSQLiteRunStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	s, err := store.NewSQLiteRunStore(path)
	require.NoError(t, err)
	run, err := s.Add(ctx, store.IndexRun{SourceKey: "k", TotalChunks: 1})
	require.NoError(t, err)
	assert.NotZero(t, run.Timestamp)
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteRunStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run, got)
}
