package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/use-agent/charitybot/api"
	"github.com/use-agent/charitybot/api/handler"
	"github.com/use-agent/charitybot/api/middleware"
	"github.com/use-agent/charitybot/cache"
	"github.com/use-agent/charitybot/config"
	"github.com/use-agent/charitybot/engine"
	"github.com/use-agent/charitybot/extractor"
	"github.com/use-agent/charitybot/metrics"
	"github.com/use-agent/charitybot/results"
	"github.com/use-agent/charitybot/scraper"
	"github.com/use-agent/charitybot/source"
	"github.com/use-agent/charitybot/webhook"
	"golang.org/x/sync/errgroup"
)

type options struct {
	input   string
	workers int
	csvOut  string
	jsonOut string
	stream  string
	backend string
	serve   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.input, "input", "", "file with one ABN per line, or a CSV with an ABN column (\"-\" for stdin)")
	flag.IntVar(&opts.workers, "workers", 0, "parallel browser sessions (default from config)")
	flag.StringVar(&opts.csvOut, "out", "charity_results.csv", "CSV output path (empty to skip)")
	flag.StringVar(&opts.jsonOut, "json", "", "JSON output path")
	flag.StringVar(&opts.stream, "stream", "", "JSON Lines path written as records arrive")
	flag.StringVar(&opts.backend, "backend", "", "session backend: rod or http (default from config)")
	flag.BoolVar(&opts.serve, "serve", false, "run the HTTP API instead of a one-shot extraction")
	flag.Parse()

	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "charitybot:", err)
		os.Exit(2)
	}
	if opts.backend != "" {
		cfg.Browser.Backend = opts.backend
	}
	if opts.workers != 0 {
		cfg.Dispatch.Workers = opts.workers
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "charitybot:", err)
		os.Exit(2)
	}

	// ── 2. Structured logging ───────────────────────────────────────
	initLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. Dispatcher: session backend + extractor + metrics ────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ex := extractor.New(cfg.Registry, m)
	dispatcher := engine.NewDispatcher(
		sessionFactory(cfg),
		ex.AsFunc(),
		engine.WithMetrics(m),
		engine.WithThrottle(cfg.Throttle.RequestsPerSecond, cfg.Throttle.Burst),
		engine.WithRecordBuffer(cfg.Dispatch.RecordBuffer),
	)

	if opts.serve {
		err = serve(ctx, cfg, dispatcher, reg)
	} else {
		err = runOnce(ctx, cfg, dispatcher, opts)
	}
	if err != nil {
		slog.Error("charitybot failed", "error", err)
		os.Exit(1)
	}
}

// sessionFactory picks the backend. The extractor never learns which one
// it is driving.
func sessionFactory(cfg *config.Config) engine.SessionFactory {
	if cfg.Browser.Backend == "http" {
		fetch := engine.NewChromeFetcher(cfg.Browser.Proxy)
		poll := cfg.Registry.PollInterval
		return func(context.Context) (engine.Session, error) {
			return engine.NewHTTPSession(fetch, poll), nil
		}
	}
	return scraper.NewSessionFactory(cfg.Browser, cfg.Registry.PollInterval)
}

var errNoRecords = errors.New("scraping completed, but no data was collected")

func runOnce(ctx context.Context, cfg *config.Config, d *engine.Dispatcher, opts options) (retErr error) {
	ids, err := readInput(opts.input)
	if err != nil {
		return err
	}
	slog.Info("charitybot starting",
		"identifiers", len(ids),
		"workers", cfg.Dispatch.Workers,
		"backend", cfg.Browser.Backend,
	)

	var sinks []results.Sink
	if opts.stream != "" {
		f, err := os.Create(opts.stream)
		if err != nil {
			return fmt.Errorf("open stream output: %w", err)
		}
		defer closeInto(f, opts.stream, &retErr)
		sinks = append(sinks, results.NewJSONLSink(f))
	}

	table, err := d.Dispatch(ctx, ids, cfg.Dispatch.Workers, sinks...)
	if err != nil {
		return err
	}

	cov := results.CheckCoverage(ids, table)
	if err := cov.WriteSummary(os.Stdout); err != nil {
		return err
	}
	if len(cov.Missing) > 0 {
		slog.Warn("identifiers without a record", "count", len(cov.Missing), "missing", cov.Missing)
	}
	if table.Len() == 0 {
		return errNoRecords
	}

	if opts.csvOut != "" {
		if err := writeFile(opts.csvOut, table.WriteCSV); err != nil {
			return err
		}
	}
	if opts.jsonOut != "" {
		if err := writeFile(opts.jsonOut, table.WriteJSON); err != nil {
			return err
		}
	}
	return nil
}

func readInput(path string) ([]string, error) {
	if path == "" {
		return nil, errors.New("-input is required unless -serve is set")
	}
	in := os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}
	return source.ReadIdentifiers(in)
}

// closeInto closes c and reports its error through errp unless an earlier
// error is already there.
func closeInto(c io.Closer, name string, errp *error) {
	if err := c.Close(); err != nil && *errp == nil {
		*errp = fmt.Errorf("close %s: %w", name, err)
	}
}

func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	slog.Info("results written", "path", path)
	return nil
}

func serve(ctx context.Context, cfg *config.Config, d *engine.Dispatcher, reg *prometheus.Registry) error {
	records := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	runs := handler.NewRuns(d, records, webhook.NewSender(), handler.RunDefaults{
		Workers:       cfg.Dispatch.Workers,
		WebhookURL:    cfg.Webhook.URL,
		WebhookSecret: cfg.Webhook.Secret,
	})
	limiters := middleware.NewLimiters(cfg.RateLimit)

	router := api.NewRouter(cfg, api.Deps{
		Runs:       runs,
		Dispatcher: d,
		Records:    records,
		Limiters:   limiters,
		Gatherer:   reg,
		StartTime:  time.Now(),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		records.Sweep(gctx, 5*time.Minute)
		return nil
	})
	g.Go(func() error {
		runs.Sweep(gctx, 5*time.Minute, time.Hour)
		return nil
	})
	g.Go(func() error {
		limiters.Sweep(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
		}
		if err := runs.Shutdown(shutdownCtx); err != nil {
			slog.Warn("runs still active at shutdown", "error", err)
		}
		return nil
	})

	err := g.Wait()
	slog.Info("charitybot stopped")
	return err
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	// Logs go to stderr so the coverage summary on stdout stays clean.
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}
