// Command linkmind ingests URLs into the topic memory: fetch, classify,
// embed, route, and write markdown notes, resumably across runs.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mkarpis/linkmind/internal/api"
	"github.com/mkarpis/linkmind/internal/classify"
	"github.com/mkarpis/linkmind/internal/config"
	"github.com/mkarpis/linkmind/internal/content"
	"github.com/mkarpis/linkmind/internal/embed"
	collyfetcher "github.com/mkarpis/linkmind/internal/fetcher/colly"
	"github.com/mkarpis/linkmind/internal/index"
	"github.com/mkarpis/linkmind/internal/logging"
	"github.com/mkarpis/linkmind/internal/notes"
	"github.com/mkarpis/linkmind/internal/pipeline"
	"github.com/mkarpis/linkmind/internal/progress"
	"github.com/mkarpis/linkmind/internal/progress/sinks"
	"github.com/mkarpis/linkmind/internal/topicmem"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "linkmind: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to config file")
		linksPath  = flag.String("links", "", "path to a file of URLs, one per line")
		force      = flag.Bool("force", false, "reprocess links already in a terminal status")
	)
	flag.Parse()

	urls, err := collectURLs(*linksPath, flag.Args())
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return errors.New("no URLs given: pass them as arguments or via -links")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	cfg.Pipeline.ForceReprocess = *force

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := index.Open(cfg.Storage.IndexPath)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer store.Close()

	cache, err := content.New(cfg.Storage.Cache)
	if err != nil {
		return fmt.Errorf("open content cache: %w", err)
	}
	writer, err := notes.NewWriter(cfg.Storage.NotesDir)
	if err != nil {
		return fmt.Errorf("open notes dir: %w", err)
	}
	classifier, err := classify.New(cfg.Classify)
	if err != nil {
		return fmt.Errorf("build classifier: %w", err)
	}

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger), promSink)

	router := topicmem.NewRouter(store, cfg.Memory.SimilarityThreshold, logger)

	coord, err := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Links:      store,
		Fetcher:    collyfetcher.New(cfg.Fetcher),
		Classifier: classifier,
		Embedder:   embed.NewClient(cfg.Embed),
		Router:     router,
		Notes:      writer,
		Content:    cache,
		Hub:        hub,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	var srv *http.Server
	if cfg.Server.Enabled {
		handler := api.NewServer(coord.StatusTable(), registry, coord.RunID(), logger).Handler()
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("observability server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("observability server failed", zap.Error(err))
			}
		}()
	}

	if err := coord.Submit(ctx, urls); err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	summary, runErr := coord.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hub.Close(closeCtx); err != nil {
		logger.Warn("progress hub close", zap.Error(err))
	}
	if srv != nil {
		if err := srv.Shutdown(closeCtx); err != nil {
			logger.Warn("observability server shutdown", zap.Error(err))
		}
	}

	logger.Info("run finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	fmt.Printf("total %d  succeeded %d  failed %d  skipped %d\n",
		summary.Total, summary.Succeeded, summary.Failed, summary.Skipped)

	return runErr
}

// collectURLs merges URLs from the -links file and positional arguments,
// skipping blank lines and # comments.
func collectURLs(path string, args []string) ([]string, error) {
	urls := append([]string(nil), args...)
	if path == "" {
		return urls, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open links file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read links file: %w", err)
	}
	return urls, nil
}
