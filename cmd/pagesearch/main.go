package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hubenschmidt/go-pagesearch"
	"github.com/hubenschmidt/go-pagesearch/config"
	"github.com/hubenschmidt/go-pagesearch/search"
	"github.com/hubenschmidt/go-pagesearch/server/store"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to a pagesearch.yaml config file")
	verbose := flag.Bool("verbose", false, "log pipeline activity to stderr")
	flag.Usage = showHelp
	flag.Parse()

	if flag.NArg() == 0 {
		showHelp()
		os.Exit(1)
	}

	if err := config.LoadDotEnv(); err != nil {
		fail(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}

	logger := zerolog.Nop()
	if *verbose {
		cfg.Log.Format = "console"
		logger = config.NewLogger(cfg.Log, os.Stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	if args[0] == "runs" {
		err = listRuns(ctx, cfg, args[1:])
	} else {
		err = runPipeline(ctx, cfg, logger, args[0], args[1:])
	}
	if err != nil {
		stop()
		fail(err)
	}
}

func runPipeline(ctx context.Context, cfg *config.Config, logger zerolog.Logger, cmd string, args []string) error {
	svc, err := pagesearch.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	switch cmd {
	case "index":
		return indexURLs(ctx, svc, args)
	case "search":
		return searchPages(ctx, svc, args)
	case "delete":
		return deleteSources(ctx, svc, args)
	case "health":
		return showHealth(ctx, svc)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func indexURLs(ctx context.Context, svc *pagesearch.Service, urls []string) error {
	if len(urls) == 0 {
		return fmt.Errorf("usage: pagesearch index <url>...")
	}
	for _, u := range urls {
		start := time.Now()
		res, err := svc.IndexURL(ctx, u)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s chunks, %s tokens in %s\n",
			res.URL, humanize.Comma(int64(res.TotalChunks)), humanize.Comma(int64(res.TotalTokens)),
			time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func searchPages(ctx context.Context, svc *pagesearch.Service, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	source := fs.String("url", "", "only search chunks of this page")
	limit := fs.Int("limit", 5, "number of results to return")
	full := fs.Bool("full", false, "print whole chunks instead of a preview")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: pagesearch search [-url URL] [-limit N] <query>")
	}

	resp, err := svc.Search(ctx, search.Query{
		Text:      strings.Join(fs.Args(), " "),
		SourceKey: *source,
		Limit:     *limit,
	})
	if err != nil {
		return err
	}

	if resp.TotalMatches == 0 {
		fmt.Println("No results found")
		return nil
	}
	fmt.Printf("Found %d results:\n\n", resp.TotalMatches)
	for _, r := range resp.Results {
		fmt.Printf("%d. distance %.4f | %s #%d\n", r.RelevanceRank, r.Score, r.SourceKey, r.Chunk.ChunkID)
		content := r.Chunk.Content
		if !*full {
			content = preview(content, 200)
		}
		fmt.Printf("   %s\n\n", content)
	}
	return nil
}

func deleteSources(ctx context.Context, svc *pagesearch.Service, urls []string) error {
	if len(urls) == 0 {
		return fmt.Errorf("usage: pagesearch delete <url>...")
	}
	for _, u := range urls {
		n, err := svc.DeleteSource(ctx, pagesearch.SourceKey(u))
		if err != nil {
			return err
		}
		fmt.Printf("%s: deleted %s chunks\n", pagesearch.SourceKey(u), humanize.Comma(int64(n)))
	}
	return nil
}

func showHealth(ctx context.Context, svc *pagesearch.Service) error {
	report := svc.Health(ctx)
	fmt.Printf("status:     %s\n", report.Status)
	fmt.Printf("vector db:  %s\n", report.VectorDB)
	fmt.Printf("collection: %s (%s chunks)\n", report.CollectionStats.CollectionName, humanize.Comma(report.CollectionStats.TotalEntities))
	fmt.Printf("model:      %s (dim %d)\n", report.EmbeddingModel, report.Dimension)
	if report.Status != pagesearch.StatusHealthy {
		return fmt.Errorf("unhealthy: %s", report.Error)
	}
	return nil
}

func listRuns(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	source := fs.String("url", "", "only list runs of this page")
	limit := fs.Int("limit", 20, "number of runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	runs, err := store.NewRunStore(cfg.Ledger.DSN)
	if err != nil {
		return err
	}
	defer runs.Close()

	sourceKey := ""
	if *source != "" {
		sourceKey = pagesearch.SourceKey(*source)
	}
	list, err := runs.List(ctx, store.ListOptions{SourceKey: sourceKey, Limit: *limit})
	if err != nil {
		return err
	}
	for _, r := range list {
		line := fmt.Sprintf("%s  %-9s %s  %s chunks  %s tokens  %dms  %s",
			shortID(r.RunID), r.Status, r.SourceKey,
			humanize.Comma(int64(r.TotalChunks)), humanize.Comma(int64(r.TotalTokens)),
			r.ElapsedMs, humanize.Time(time.UnixMilli(r.Timestamp)))
		if r.Error != "" {
			line += "  " + r.Error
		}
		fmt.Println(line)
	}

	sum, err := runs.Summary(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s runs (%s failed) over %s sources, %s chunks, %s tokens, avg %.0fms\n",
		humanize.Comma(int64(sum.TotalRuns)), humanize.Comma(int64(sum.FailedRuns)), humanize.Comma(int64(sum.Sources)),
		humanize.Comma(sum.TotalChunks), humanize.Comma(sum.TotalTokens), sum.AvgLatencyMs)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func showHelp() {
	fmt.Fprintf(os.Stderr, `Usage: pagesearch [options] <command> [args]

Commands:
  index <url>...                       fetch, chunk and index web pages
  search [-url U] [-limit N] <query>   semantic search over indexed pages
  delete <url>...                      remove a page's chunks
  health                               check the vector store
  runs [-url U] [-limit N]             list recorded index runs

Options:
`)
	flag.PrintDefaults()
}
