package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"pdfchat/internal/bootstrap"
	"pdfchat/internal/config"
	"pdfchat/internal/logging"
	"pdfchat/internal/rag"
)

var (
	force    = flag.Bool("force", false, "Re-index files even when unchanged")
	recreate = flag.Bool("recreate", false, "Drop and recreate the collection before indexing")
	watch    = flag.Bool("watch", false, "Keep running and re-index PDFs as they change")
	debounce = flag.Duration("debounce", 2*time.Second, "Quiet period before a changed file is re-indexed")
)

var (
	boldGreen = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow    = color.New(color.FgYellow).SprintFunc()
	red       = color.New(color.FgRed).SprintFunc()
	faint     = color.New(color.Faint).SprintFunc()
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, red("Error: "+err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	logger, err := logging.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger failed: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	indexing, err := bootstrap.NewIndexing(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := indexing.Close(); err != nil {
			logger.Error("close resources failed", zap.Error(err))
		}
	}()

	printHeader(cfg)

	if *recreate {
		fmt.Println(yellow("Recreating collection " + cfg.VectorStore.Collection))
		if err := indexing.Indexer.Recreate(ctx); err != nil {
			return fmt.Errorf("recreate collection failed: %w", err)
		}
	}

	start := time.Now()
	report, err := indexing.Indexer.IndexAll(ctx, *force, printResult)
	if err != nil {
		return err
	}
	printReport(report, time.Since(start))

	if !*watch {
		return nil
	}

	fmt.Printf("\n%s %s %s\n", boldCyan("Watching"), cfg.Storage.DocumentsDir, faint("(Ctrl+C to stop)"))
	watcher := rag.NewWatcher(cfg.Storage.DocumentsDir, *debounce, logger)
	return watcher.Run(ctx, func(ctx context.Context, ev rag.FileEvent) {
		printResult(indexing.Indexer.HandleEvent(ctx, ev))
	})
}

func printHeader(cfg *config.Config) {
	fmt.Println(boldGreen("PDF indexer"))
	fmt.Printf("Documents:   %s\n", boldCyan(cfg.Storage.DocumentsDir))
	fmt.Printf("Collection:  %s (%s)\n", boldCyan(cfg.VectorStore.Collection), cfg.VectorStore.Driver)
	fmt.Printf("Embeddings:  %s via %s\n", boldCyan(cfg.LLM.EmbeddingModel), cfg.LLM.Provider)
	fmt.Printf("Chunking:    %d runes, %d overlap\n\n", cfg.LLM.ChunkSize, cfg.LLM.ChunkOverlap)
}

func printResult(res rag.FileResult) {
	switch res.Status {
	case rag.StatusIndexed:
		fmt.Printf("%s %s %s\n", boldGreen("indexed"), res.Path, faint(fmt.Sprintf("(%d pages, %d chunks)", res.Pages, res.Chunks)))
	case rag.StatusSkipped:
		fmt.Printf("%s %s\n", faint("skipped"), res.Path)
	case rag.StatusEmpty:
		fmt.Printf("%s %s %s\n", yellow("empty  "), res.Path, faint("(no extractable text)"))
	case rag.StatusRemoved:
		fmt.Printf("%s %s\n", yellow("removed"), res.Path)
	case rag.StatusFailed:
		fmt.Printf("%s %s: %v\n", red("failed "), res.Path, res.Err)
	}
}

func printReport(r rag.Report, elapsed time.Duration) {
	fmt.Println()
	fmt.Printf("%s in %s: %d indexed, %d skipped, %d empty, %d removed, %d failed, %d chunks\n",
		boldGreen("Done"), elapsed.Round(time.Millisecond),
		r.Indexed, r.Skipped, r.Empty, r.Removed, r.Failed, r.Chunks)
	if r.Failed > 0 {
		fmt.Println(red(fmt.Sprintf("%d file(s) failed; run again to retry them", r.Failed)))
	}
}
