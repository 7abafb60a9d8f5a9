package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"zkml-orchestrator/api/rest/routes"
	"zkml-orchestrator/config"
	"zkml-orchestrator/core/executor"
	"zkml-orchestrator/core/monitoring"
	"zkml-orchestrator/core/pipeline"
	"zkml-orchestrator/core/repository"
	"zkml-orchestrator/core/spec"
	"zkml-orchestrator/core/workspace"
	"zkml-orchestrator/providers/aws"
	"zkml-orchestrator/settlement"
	"zkml-orchestrator/storage"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			return fmt.Errorf("initializing sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("Error reporting enabled")
	}

	// Job history is optional
	var recorder pipeline.JobRecorder
	var db *repository.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		recorder = repository.NewHistory(db)
		log.Info("Database connected, job history enabled")

		// Runs past the engine timeout can no longer finish
		maxAge := time.Duration(0)
		if cfg.EngineTimeout > 0 {
			maxAge = cfg.EngineTimeout + time.Minute
		}
		monitorCtx, stopMonitor := context.WithCancel(ctx)
		defer stopMonitor()
		go monitoring.NewJobMonitor(repository.NewJobRepository(db), maxAge).Start(monitorCtx, time.Minute)
	}

	var engine executor.Engine
	switch cfg.EngineMode {
	case config.EngineModeHTTP:
		engine = executor.NewHTTPEngine(cfg.EngineURL)
	default:
		engine = executor.NewExecEngine(cfg.EngineBinary)
	}
	runner := executor.NewRunner(engine, cfg.EngineTimeout)

	source, err := paramsSource(ctx, cfg)
	if err != nil {
		return err
	}
	params := storage.NewParamsStore(cfg.ParamsPath, source)

	profile, err := spec.LoadRunProfile(cfg.RunProfile, cfg.JudgeThreshold)
	if err != nil {
		return fmt.Errorf("loading run profile: %w", err)
	}

	notifier, closeNotifier, err := settlementNotifier(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeNotifier()

	workspaces := workspace.NewManager(cfg.DataDir, cfg.ModelExt)
	if err := workspaces.Init(); err != nil {
		return fmt.Errorf("initializing workspaces: %w", err)
	}

	coordinator := pipeline.NewCoordinator(workspaces, runner, params, pipeline.Options{
		Args:      profile.Args,
		Prove:     profile.Prove,
		Threshold: profile.Threshold,
		Recorder:  recorder,
		Notifier:  notifier,
	})

	r := mux.NewRouter()
	routes.SetupRoutes(r, coordinator, cfg.DefaultProject, db)

	var handler http.Handler = r
	if cfg.SentryDSN != "" {
		handler = sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle(r)
	}

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: handler,
	}

	log.WithFields(log.Fields{
		"port":        cfg.ServerPort,
		"data_dir":    cfg.DataDir,
		"engine_mode": cfg.EngineMode,
		"threshold":   profile.Threshold,
		"history":     db != nil,
	}).Info("Configuration loaded")

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited")
	return nil
}

// paramsSource picks where missing proving parameters are fetched from
func paramsSource(ctx context.Context, cfg *config.Config) (storage.Source, error) {
	switch {
	case cfg.ParamsSource == "":
		return nil, nil
	case strings.HasPrefix(cfg.ParamsSource, "s3://"):
		client, err := aws.NewClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		src, err := aws.NewS3Source(client, cfg.ParamsSource)
		if err != nil {
			return nil, err
		}
		return src, nil
	case strings.HasPrefix(cfg.ParamsSource, "http://"), strings.HasPrefix(cfg.ParamsSource, "https://"):
		return &storage.HTTPSource{URL: cfg.ParamsSource}, nil
	default:
		return nil, fmt.Errorf("unsupported PARAMS_SOURCE %q", cfg.ParamsSource)
	}
}

// settlementNotifier builds the win notifier; the notifier is nil when settlement is off
func settlementNotifier(ctx context.Context, cfg *config.Config) (settlement.Notifier, func(), error) {
	if cfg.OnChainSettlement() {
		n, err := settlement.NewContractNotifier(ctx, settlement.ContractConfig{
			RPCURL:     cfg.SettlementRPCURL,
			Contract:   cfg.SettlementContract,
			PrivateKey: cfg.SettlementPrivateKey,
			ChainID:    cfg.SettlementChainID,
		})
		if err != nil {
			return nil, func() {}, fmt.Errorf("connecting settlement contract: %w", err)
		}
		log.WithField("contract", cfg.SettlementContract).Info("On-chain settlement enabled")
		return n, n.Close, nil
	}
	if cfg.SettlementURL != "" {
		log.WithField("url", cfg.SettlementURL).Info("Webhook settlement enabled")
		return settlement.NewHTTPNotifier(cfg.SettlementURL), func() {}, nil
	}
	return nil, func() {}, nil
}
