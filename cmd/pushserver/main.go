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
	"syscall"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/dynamiatools/wscommands/internal/config"
	"github.com/dynamiatools/wscommands/internal/database"
	"github.com/dynamiatools/wscommands/internal/journal"
	"github.com/dynamiatools/wscommands/internal/metrics"
	"github.com/dynamiatools/wscommands/internal/push"
	"github.com/dynamiatools/wscommands/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/pushserver.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting pushserver",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"endpoint", cfg.Server.Endpoint,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("pushserver failed", "error", err)
		os.Exit(1)
	}

	logger.Info("pushserver stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := metrics.NewRegistry()

	hubOpts := []push.Option{push.WithMetrics(metrics.NewServer(reg))}

	// Optional push journal
	var dbPinger push.Pinger
	var writer *journal.Writer
	if cfg.Journal.Enabled {
		logger.Info("connecting to journal database",
			"host", cfg.Journal.Database.Host,
			"port", cfg.Journal.Database.Port,
			"database", cfg.Journal.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Journal.Database, logger)
		if err != nil {
			return fmt.Errorf("connect journal database: %w", err)
		}
		defer pool.Close()

		if err := journal.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		writer = journal.NewWriter(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, pool, logger)
		if err := writer.Start(ctx); err != nil {
			return fmt.Errorf("start journal writer: %w", err)
		}

		dbPinger = pool
		hubOpts = append(hubOpts, push.WithJournal(writer))
	}

	hub := push.NewHub(push.Config{
		AllowedOrigins:        cfg.Server.AllowedOrigins,
		AllowedOriginPatterns: cfg.Server.AllowedOriginPatterns,
		BroadcastConcurrency:  cfg.Server.BroadcastConcurrency,
		WriteTimeout:          cfg.Server.WriteTimeout,
	}, logger, hubOpts...)

	var heartbeat *push.Heartbeat
	if cfg.Server.HeartbeatSchedule != "" {
		hb, err := push.NewHeartbeat(cfg.Server.HeartbeatSchedule, hub, cfg.Server.WriteTimeout, logger)
		if err != nil {
			return err
		}
		heartbeat = hb
		heartbeat.Start()
	}

	router := mux.NewRouter()
	router.Handle(cfg.Server.Endpoint, hub)
	push.NewAPI(hub, dbPinger, logger).Register(router)

	servers := []*http.Server{{
		Addr:    cfg.Server.ListenAddr,
		Handler: router,
	}}

	if cfg.Metrics.Port > 0 {
		metricsRouter := mux.NewRouter()
		metricsRouter.Handle(cfg.Metrics.Path, metrics.Handler(reg))
		servers = append(servers, &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metricsRouter,
		})
	} else {
		router.Handle(cfg.Metrics.Path, metrics.Handler(reg))
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if heartbeat != nil {
			heartbeat.Stop(shutdownCtx)
		}
		for _, srv := range servers {
			srv.Shutdown(shutdownCtx)
		}
		if err := hub.Close(shutdownCtx); err != nil {
			logger.Warn("hub close timed out", "error", err)
		}
		if writer != nil {
			writer.Stop(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}
