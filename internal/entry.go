// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/autolink/internal/api"
	"github.com/starford/autolink/internal/index"
	"github.com/starford/autolink/internal/linker"
	"github.com/starford/autolink/internal/linkservice"
	"github.com/starford/autolink/internal/mcpserver"
	"github.com/starford/autolink/internal/models"
	"github.com/starford/autolink/internal/parser"
	"github.com/starford/autolink/internal/render"
	"github.com/starford/autolink/internal/sse"
	"github.com/starford/autolink/internal/storage"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// cliLogger logs to stderr so stdout stays free for results and for the MCP
// stdio transport.
func cliLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openStore(cfg *Config) (*storage.FS, error) {
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return store, nil
}

func newLinker(cfg *Config, logger *slog.Logger) *linker.Linker {
	return linker.New(parser.New(), cfg.Linker.LinkerOptions(logger)...)
}

// openService wires storage, index and linker. The caller closes the
// returned DB.
func openService(cfg *Config, logger *slog.Logger) (*linkservice.Service, *index.DB, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init index: %w", err)
	}
	svc := linkservice.NewService(store, db, newLinker(cfg, logger), cfg.Linker.Options(), logger)
	return svc, db, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("case_insensitive", cfg.Linker.CaseInsensitive),
		slog.Bool("link_to_self", cfg.Linker.LinkToSelf),
		slog.String("log_level", cfg.App.LogLevel.String()))

	svc, db, err := openService(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	svc.OnSync(func(run index.Run, err error) {
		broker.PublishSync(run, err)
	})

	// Run initial sync.
	if _, _, err := svc.Sync(ctx, false); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := svc.LatestRun(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"no run yet"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Linker.Watch {
		g.Go(func() error {
			if err := svc.Watch(gCtx, cfg.Vault.Path); err != nil {
				logger.Error("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// Scan resolves the vault once and prints the references. With WithSave the
// run is stored in the index and the printed result is read back from it.
func Scan(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := cliLogger(cfg.App.LogLevel)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	docs, _, err := storage.LoadCorpus(store)
	if err != nil {
		return err
	}

	var res *models.Result
	if app.save {
		res, err = scanAndSave(ctx, cfg, logger)
	} else {
		res, err = newLinker(cfg, logger).Resolve(ctx, docs, cfg.Linker.Options())
	}
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	if app.json {
		enc := json.NewEncoder(app.out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	render.New(app.out).Result(res, docs)
	return nil
}

func scanAndSave(ctx context.Context, cfg *Config, logger *slog.Logger) (*models.Result, error) {
	svc, db, err := openService(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	run, _, err := svc.Sync(ctx, true)
	if err != nil {
		return nil, err
	}
	logger.Info("scan: run saved", slog.String("run", run.ID))

	refs, err := svc.References(ctx, "", "")
	if err != nil {
		return nil, err
	}
	failures, err := svc.Failures(ctx)
	if err != nil {
		return nil, err
	}
	res := &models.Result{References: refs, FailedPaths: make([]string, 0, len(failures))}
	for _, f := range failures {
		res.FailedPaths = append(res.FailedPaths, f.Path)
		res.Failures = append(res.Failures, &models.ParseFailure{Path: f.Path, Cause: errors.New(f.Error)})
	}
	return res, nil
}

// Apply inserts wiki links for the references of the latest run, into one
// note when WithNotePath is set and into every note otherwise.
func Apply(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := cliLogger(cfg.App.LogLevel)

	svc, db, err := openService(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, _, err := svc.Sync(ctx, false); err != nil {
		return err
	}

	var results []*linkservice.ApplyResult
	if app.path != "" {
		res, err := svc.Apply(ctx, app.path, app.dryRun)
		if err != nil {
			return err
		}
		results = append(results, res)
	} else {
		// Notes written before a failure are still reported.
		results, err = svc.ApplyAll(ctx, app.dryRun)
	}

	p := render.New(app.out)
	for _, res := range results {
		p.Applied(res.Path, res.Applied, res.Skipped, res.DryRun)
	}
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(app.out, "nothing to link")
	}
	return nil
}

// ServeMCP serves the MCP tools over stdio until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := cliLogger(cfg.App.LogLevel)
	slog.SetDefault(logger)

	svc, db, err := openService(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, _, err := svc.Sync(ctx, false); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.Linker.Watch {
		go func() {
			if err := svc.Watch(ctx, cfg.Vault.Path); err != nil {
				logger.Error("watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	logger.Info("mcp: serving on stdio", slog.String("version", app.version))
	return mcpserver.New(svc, app.version).ServeStdio()
}
