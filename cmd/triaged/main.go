// triaged runs the clinical triage automation: the Matrix room listener,
// the job queue workers, and the HTTP API. Each role can run alone
// (--roles api) or combined in one process (default all).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/carlosapgomes/triage-automation-sub001/pkg/api"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/auth"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/chat"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/checkpoint"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/config"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/database"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/intake"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/llm"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/monitoring"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/pipeline"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/queue"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/store"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/summary"
	"github.com/carlosapgomes/triage-automation-sub001/pkg/version"
)

type roleSet struct {
	api      bool
	listener bool
	worker   bool
}

func parseRoles(spec string) (roleSet, error) {
	var roles roleSet
	for _, role := range strings.Split(spec, ",") {
		switch strings.TrimSpace(role) {
		case "all":
			return roleSet{api: true, listener: true, worker: true}, nil
		case "api":
			roles.api = true
		case "listener":
			roles.listener = true
		case "worker":
			roles.worker = true
		case "":
		default:
			return roleSet{}, fmt.Errorf("unknown role %q (want api, listener, worker, or all)", role)
		}
	}
	if !roles.api && !roles.listener && !roles.worker {
		return roleSet{}, fmt.Errorf("no roles selected")
	}
	return roles, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	rolesFlag := flag.String("roles", "all", "Comma-separated roles to run: api, listener, worker, or all")
	envFile := flag.String("env-file", ".env", "Path to the .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	roles, err := parseRoles(*rolesFlag)
	if err != nil {
		slog.Error("Invalid --roles", "error", err)
		os.Exit(1)
	}
	if roles.listener || roles.worker {
		if err := cfg.ValidateChat(); err != nil {
			slog.Error("Incomplete chat configuration", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Starting triaged",
		"version", version.Full(),
		"roles", *rolesFlag,
		"llm_mode", cfg.LLMMode,
		"listen_addr", cfg.ListenAddr)

	ctx := context.Background()

	// Database: connect and apply pending migrations.
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	pool := dbClient.Pool()
	caseStore := store.NewCaseStore(pool)
	journalStore := store.NewJournalStore(pool)
	jobStore := store.NewJobStore(pool)
	checkpointStore := store.NewCheckpointStore(pool)
	promptStore := store.NewPromptStore(pool)
	monitoringStore := store.NewMonitoringStore(pool)
	summaryStore := store.NewSummaryStore(pool)
	userStore := store.NewUserStore(pool)
	tokenStore := store.NewTokenStore(pool)

	// First-run admin bootstrap. A no-op whenever users already exist or no
	// credentials are configured.
	authSvc := auth.NewService(userStore, tokenStore, journalStore,
		auth.BcryptHasher{}, auth.Config{})
	outcome, err := authSvc.BootstrapAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
	if err != nil {
		slog.Error("Admin bootstrap failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Admin bootstrap", "outcome", outcome)

	rooms := chat.RoomConfig{
		Room1ID: cfg.Room1ID,
		Room2ID: cfg.Room2ID,
		Room3ID: cfg.Room3ID,
	}
	matrixClient := chat.NewMatrixClient(chat.MatrixConfig{
		HomeserverURL: cfg.MatrixHomeserverURL,
		AccessToken:   cfg.MatrixAccessToken,
		BotUserID:     cfg.MatrixBotUserID,
	})

	var llmClient llm.Client
	switch cfg.LLMMode {
	case config.LLMModeProvider:
		llmClient, err = llm.NewOpenAIClient(cfg.OpenAIAPIKey, "")
		if err != nil {
			slog.Error("Failed to create LLM client", "error", err)
			os.Exit(1)
		}
	default:
		llmClient = llm.NewDeterministicClient()
	}

	checkpointSvc := checkpoint.NewService(checkpointStore, journalStore, jobStore)
	intakeSvc := intake.NewService(caseStore, journalStore, jobStore, matrixClient)
	decisionSvc := pipeline.NewDecisionService(caseStore, journalStore, jobStore, matrixClient)
	schedulerSvc := pipeline.NewSchedulerService(caseStore, journalStore, jobStore, matrixClient)

	// Worker pool. Start requeues jobs orphaned in running by a crash.
	var workerPool *queue.Pool
	if roles.worker {
		executor := pipeline.NewExecutor(caseStore, journalStore, jobStore,
			checkpointSvc, matrixClient, llmClient, promptStore,
			pipeline.PlainTextExtractor{}, rooms)
		workerPool = queue.NewPool(jobStore, caseStore, executor, queue.Config{
			PollInterval: cfg.WorkerPollInterval,
		})
		if err := workerPool.Start(ctx); err != nil {
			slog.Error("Failed to start worker pool", "error", err)
			os.Exit(1)
		}
	}

	// Chat listener.
	var listener *chat.Listener
	if roles.listener {
		router := chat.NewRouter(rooms, intakeSvc, decisionSvc, schedulerSvc,
			checkpointSvc, journalStore)
		listener = chat.NewListener(matrixClient, router, chat.ListenerConfig{
			SyncTimeout:  cfg.MatrixSyncTimeout,
			PollInterval: cfg.MatrixPollInterval,
		})
		listener.Start(ctx)
	}

	// HTTP API.
	var httpServer *http.Server
	errCh := make(chan error, 1)
	if roles.api {
		monitoringSvc := monitoring.NewService(monitoringStore, caseStore, checkpointStore)
		summarySvc := summary.NewService(summaryStore)

		var poolHealth api.PoolHealthSource
		if workerPool != nil {
			poolHealth = workerPool
		}
		server := api.NewServer(authSvc, monitoringSvc, summarySvc,
			decisionSvc, caseStore, dbClient, poolHealth)

		httpServer = &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           server.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP server listening", "addr", cfg.ListenAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	slog.Info("triaged started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("HTTP server error triggered shutdown", "error", err)
	}

	// Graceful shutdown: stop taking new inbound events, let workers finish
	// their current job, then drain the HTTP server.
	if listener != nil {
		listener.Stop()
		slog.Info("Chat listener stopped")
	}
	if workerPool != nil {
		done := make(chan struct{})
		go func() {
			workerPool.Stop()
			close(done)
		}()
		select {
		case <-done:
			slog.Info("Worker pool stopped gracefully")
		case <-time.After(30 * time.Second):
			slog.Warn("Worker shutdown timeout exceeded, jobs will be requeued on next start")
		}
	}
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}

	slog.Info("Shutdown complete")
}
