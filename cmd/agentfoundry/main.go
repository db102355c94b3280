// Command agentfoundry runs the factory orchestration core: the HTTP/WS
// surface by default, plus admin subcommands (create-api-key, migrate) and
// an MCP stdio server for agent introspection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/AgentFoundry/internal/adapter/filekv"
	"github.com/Strob0t/AgentFoundry/internal/adapter/gitcli"
	afhttp "github.com/Strob0t/AgentFoundry/internal/adapter/http"
	afmcp "github.com/Strob0t/AgentFoundry/internal/adapter/mcp"
	afnats "github.com/Strob0t/AgentFoundry/internal/adapter/nats"
	"github.com/Strob0t/AgentFoundry/internal/adapter/natskv"
	"github.com/Strob0t/AgentFoundry/internal/adapter/postgres"
	"github.com/Strob0t/AgentFoundry/internal/adapter/ristretto"
	"github.com/Strob0t/AgentFoundry/internal/adapter/ws"
	"github.com/Strob0t/AgentFoundry/internal/config"
	"github.com/Strob0t/AgentFoundry/internal/git"
	"github.com/Strob0t/AgentFoundry/internal/logger"
	"github.com/Strob0t/AgentFoundry/internal/port/ledger"
	"github.com/Strob0t/AgentFoundry/internal/resilience"
	"github.com/Strob0t/AgentFoundry/internal/secrets"
	"github.com/Strob0t/AgentFoundry/internal/service"
	"github.com/Strob0t/AgentFoundry/internal/telemetry"
)

const version = "0.1.0"

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "serve":
		exitOn(runServe())
	case "create-api-key":
		exitOn(runCreateAPIKey(args))
	case "migrate":
		exitOn(runMigrate(args))
	case "mcp":
		exitOn(runMCP())
	case "help", "--help", "-h":
		printHelp()
	default:
		printHelp()
		exitOn(fmt.Errorf("unknown command: %s", cmd))
	}
}

func exitOn(err error) {
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `Usage: agentfoundry [command]

Commands:
  serve            Run the factory core server (default)
  mcp              Serve read-only MCP tools over stdio
  create-api-key   Create an API key for the HTTP surface
  migrate          Apply (or roll back) database migrations
  help             Show this help message
`)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"repo_path", cfg.Factory.RepoPath,
		"base_branch", cfg.Factory.BaseBranch,
	)

	ctx := context.Background()

	// --- Telemetry ---
	otelShutdown, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := afnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() {
		if err := queue.Drain(); err != nil {
			slog.Error("nats drain failed", "error", err)
		}
	}()

	ledgerStore, err := openLedger(ctx, cfg, queue)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	projectCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer projectCache.Close()

	// Provider credentials for the external agent runtime. Missing keys only
	// warn: the runtime may hold its own credentials.
	vault, err := secrets.NewVault(secrets.ProviderLoader(providerNames(cfg)...))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	for _, p := range providerNames(cfg) {
		if vault.Get(p) == "" {
			slog.Warn("no API key found for provider", "provider", p)
		}
	}

	// --- Adapters over infrastructure ---
	store := postgres.NewStore(pool)
	gitPool := git.NewPool(cfg.Git.MaxConcurrent)
	vcsClient := gitcli.NewClient(gitPool)
	runner := afnats.NewRunner(queue)
	hub := ws.NewHub()
	breakers := resilience.NewRegistry(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	// --- Services ---
	isolation := service.NewIsolationService(vcsClient, queue, cfg.Factory.RepoPath, cfg.Factory.BranchNamespace)
	verifier := service.NewRunnerVerifier(runner, cfg.Models.DefaultModel)
	graph := service.NewTaskGraphService(store, queue, verifier, cfg.Factory.AuditParallelism)
	coordinator := service.NewCoordinatorService(store, queue, hub, cfg.Factory.CollabLogMax)
	gate := service.NewGateService(cfg.Gate, cfg.Discipline, ledgerStore, runner, vcsClient, queue, hub)
	continuity := service.NewContinuityService(ledgerStore, vcsClient)
	selector := service.NewSelectorService(cfg.Models, store, breakers, nil, queue, hub)
	factory := service.NewFactoryService(cfg.Factory, store, isolation, graph, coordinator,
		gate, continuity, selector, runner, projectCache, metrics)

	// --- HTTP ---
	handlers := afhttp.NewHandlers(factory, graph, coordinator, gate, continuity, selector,
		store, func() error { return pool.Ping(ctx) })

	r := chi.NewRouter()
	r.Use(afhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(afhttp.SecurityHeaders)
	r.Use(afhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(afhttp.APIKeyAuth(store, cfg.Server.AuthEnabled))

	afhttp.MountRoutes(r, handlers, hub.HandleWS)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           telemetry.HTTPMiddleware("agentfoundry")(r),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runMCP serves the read-only MCP tool surface over stdio. Log output moves
// to stderr so stdout stays a clean protocol channel.
func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	queue, err := afnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	ledgerStore, err := openLedger(ctx, cfg, queue)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	store := postgres.NewStore(pool)
	gitPool := git.NewPool(cfg.Git.MaxConcurrent)
	vcsClient := gitcli.NewClient(gitPool)
	breakers := resilience.NewRegistry(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	noopHub := noBroadcast{}

	isolation := service.NewIsolationService(vcsClient, queue, cfg.Factory.RepoPath, cfg.Factory.BranchNamespace)
	graph := service.NewTaskGraphService(store, queue, nil, cfg.Factory.AuditParallelism)
	coordinator := service.NewCoordinatorService(store, queue, noopHub, cfg.Factory.CollabLogMax)
	gate := service.NewGateService(cfg.Gate, cfg.Discipline, ledgerStore, nil, vcsClient, queue, noopHub)
	continuity := service.NewContinuityService(ledgerStore, vcsClient)
	selector := service.NewSelectorService(cfg.Models, store, breakers, nil, queue, noopHub)
	factory := service.NewFactoryService(cfg.Factory, store, isolation, graph, coordinator,
		gate, continuity, selector, nil, nil, nil)

	s := afmcp.NewServer(
		afmcp.ServerConfig{Name: "agentfoundry", Version: version},
		afmcp.ServerDeps{
			Projects: factory,
			Tasks:    graph,
			Gate:     gate,
			Forward:  continuity,
			Costs:    store,
		},
	)
	return s.ServeStdio()
}

// openLedger builds the durable ledger store from the configured backend.
func openLedger(ctx context.Context, cfg *config.Config, queue *afnats.Queue) (ledger.Store, error) {
	if cfg.Ledger.Backend == "file" {
		return filekv.New(cfg.Ledger.Dir)
	}
	kv, err := queue.KeyValue(ctx, cfg.NATS.LedgerBucket)
	if err != nil {
		return nil, fmt.Errorf("ledger bucket: %w", err)
	}
	return natskv.New(kv), nil
}

type noBroadcast struct{}

func (noBroadcast) BroadcastEvent(context.Context, string, any) {}

func providerNames(cfg *config.Config) []string {
	seen := make(map[string]bool)
	var out []string
	for _, opt := range cfg.Models.Options {
		if !seen[opt.Provider] {
			seen[opt.Provider] = true
			out = append(out, opt.Provider)
		}
	}
	return out
}
