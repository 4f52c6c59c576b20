package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/dynamiatools/wscommands/internal/config"
	"github.com/dynamiatools/wscommands/internal/connection"
	"github.com/dynamiatools/wscommands/internal/metrics"
	"github.com/dynamiatools/wscommands/internal/session"
	"github.com/dynamiatools/wscommands/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/wsclient.local.yaml", "path to config file")
	identity := flag.String("identity", "", "override client.identity")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *identity != "" {
		cfg.Client.Identity = *identity
	}
	if err := cfg.ValidateClient(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting wsclient",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"identity", cfg.Client.Identity,
		"endpoint", cfg.Client.Endpoint,
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

	reg := metrics.NewRegistry()

	provider := session.NewStatic()
	dialer := connection.NewWebSocketDialer(connection.DialerConfig{
		HandshakeTimeout: cfg.Client.HandshakeTimeout,
		WriteTimeout:     cfg.Client.WriteTimeout,
	}, nil, logger)

	mgr := connection.NewManager(
		managerConfig(cfg.Client),
		dialer,
		provider,
		logger,
		connection.WithMetrics(metrics.NewClient(reg)),
	)

	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	// Attaching the session triggers auto connect
	provider.Attach(newSession(cfg.Client, logger))

	var statusServer *http.Server
	if cfg.Metrics.Port > 0 {
		statusServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: createStatusHandler(mgr, cfg, metrics.Handler(reg), logger),
		}

		go func() {
			logger.Info("starting status server", "port", cfg.Metrics.Port)
			if err := statusServer.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("status server error", "error", err)
			}
		}()
	}

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	provider.Detach()
	if err := mgr.Stop(shutdownCtx); err != nil {
		logger.Warn("connection manager stop", "error", err)
	}
	if statusServer != nil {
		statusServer.Shutdown(shutdownCtx)
	}

	logger.Info("wsclient stopped")
}

// managerConfig maps client config onto the connection manager.
func managerConfig(c config.ClientConfig) connection.ManagerConfig {
	return connection.ManagerConfig{
		PageURL:        c.PageURL,
		Endpoint:       c.Endpoint,
		AutoConnect:    c.AutoConnectEnabled(),
		EventName:      c.EventName,
		DispatchBuffer: c.DispatchBuffer,
		Reconnect: connection.ReconnectPolicy{
			MaxAttempts:       c.Reconnect.MaxAttempts,
			InitialDelay:      c.Reconnect.InitialDelay,
			MaxDelay:          c.Reconnect.MaxDelay,
			BackoffMultiplier: c.Reconnect.BackoffMultiplier,
		},
		KeepAlive: connection.KeepAlivePolicy{
			Enabled:  c.KeepAlive.IsEnabled(),
			Interval: c.KeepAlive.Interval,
		},
	}
}

// newSession forwards commands to DispatchURL, or only logs them when it
// is not set.
func newSession(c config.ClientConfig, logger *slog.Logger) session.Session {
	if c.DispatchURL == "" {
		return session.Logging{Identity: c.Identity, Logger: logger}
	}
	return session.NewHTTP(c.Identity, c.DispatchURL,
		session.WithLogger(logger),
		session.WithTimeout(c.Dispatch.Timeout),
		session.WithRetries(c.Dispatch.MaxRetries, c.Dispatch.RetryBackoff),
	)
}

// createStatusHandler exposes connection status, manual control and metrics.
func createStatusHandler(mgr *connection.Manager, cfg *config.Config, metricsHandler http.Handler, logger *slog.Logger) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			connection.Status
			Reconnect connection.ReconnectPolicy `json:"reconnect_policy"`
			KeepAlive connection.KeepAlivePolicy `json:"keep_alive_policy"`
			Build     version.Info               `json:"build"`
		}{
			Status:    mgr.Status(),
			Reconnect: mgr.ReconnectPolicy(),
			KeepAlive: mgr.KeepAlivePolicy(),
			Build:     version.Get(),
		})
	}).Methods(http.MethodGet)

	control := func(name string, fn func() error) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if err := fn(); err != nil {
				logger.Warn("control request failed", "action", name, "error", err)
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}
	}

	router.HandleFunc("/connect", control("connect", func() error {
		return mgr.Init(cfg.Client.Endpoint)
	})).Methods(http.MethodPost)
	router.HandleFunc("/close", control("close", mgr.Close)).Methods(http.MethodPost)
	router.HandleFunc("/reset", control("reset", mgr.Reset)).Methods(http.MethodPost)

	router.Handle(cfg.Metrics.Path, metricsHandler).Methods(http.MethodGet)

	return router
}
