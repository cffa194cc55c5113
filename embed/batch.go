package embed

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent embedding calls when no limit is given.
const DefaultWorkers = 4

// EmbedAll embeds texts with at most workers calls in flight. Results keep
// the order of texts. The first failure cancels the remaining calls.
func EmbedAll(ctx context.Context, e Embedder, texts []string, workers int) ([][]float32, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(ctx, text)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
