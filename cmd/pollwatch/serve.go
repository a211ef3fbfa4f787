package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/pollwatch"
	"github.com/jpalmerr/pollwatch/config"
	"github.com/jpalmerr/pollwatch/internal/server"
	"github.com/jpalmerr/pollwatch/internal/store"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts polling configured targets and serves the session API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll configured targets and serve the session API",
	Long: `Start the pollwatch service.

The service will:
  - Load configuration from the specified YAML file
  - Start a polling session for every configured target
  - Record session progress in memory or Redis
  - Serve the session API and SSE stream on the configured port

Set redis.addr to "dev" to run an embedded in-memory Redis.

The service runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  pollwatch serve -c config.yaml
  pollwatch serve --config /etc/pollwatch/config.yaml --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(logLevel(cmd, cfg.LogLevel))
	if err != nil {
		return err
	}

	targets, err := config.BuildTargets(cfg)
	if err != nil {
		return fmt.Errorf("failed to build targets: %w", err)
	}

	logger.Info("config loaded",
		"targets", len(cfg.Targets),
		"grids", len(cfg.Grids),
		"sessions", len(targets),
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	recorder := server.NewRecorder(st, logger)
	coord, err := pollwatch.New(
		pollwatch.WithDefaultWaitTime(cfg.WaitTime.Duration()),
		pollwatch.WithDefaultMaxTries(cfg.MaxTries),
		pollwatch.WithMaxConcurrency(cfg.MaxConcurrency),
		pollwatch.WithLogger(logger),
		pollwatch.WithEventCallback(recorder.Record),
	)
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}

	srv := server.NewServer(st, coord, recorder, cfg.Port, logger)
	if err := srv.Start(ctx); err != nil {
		coord.Close()
		return err
	}
	logger.Info("starting server",
		"port", cfg.Port,
		"wait_time", cfg.WaitTime.Duration().String(),
		"max_tries", cfg.MaxTries,
	)

	for _, t := range targets {
		recorder.Track(t)
		coord.Watch(t, logHandlers(logger, t.RequestID()))
	}

	<-ctx.Done()
	logger.Info("shutting down")

	done := make(chan struct{})
	go func() {
		coord.Close()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out",
			"timeout", shutdownTimeout.String(),
			"action", "forcing exit",
		)
	}
	return nil
}

// logHandlers reports a configured session's outcome to the log. Session
// records hold the details.
func logHandlers(logger *slog.Logger, requestID string) pollwatch.Handlers {
	return pollwatch.Handlers{
		OnSuccess: func(resp pollwatch.Response) {
			logger.Info("target finished", "request_id", requestID, "status_code", resp.StatusCode)
		},
		OnError: func(err error) {
			logger.Error("target failed", "request_id", requestID, "error", err.Error())
		},
	}
}

// openStore opens the record store named by rc. The returned func closes it.
func openStore(ctx context.Context, rc config.RedisConfig, logger *slog.Logger) (store.Store, func(), error) {
	switch rc.Addr {
	case "":
		st := store.NewMemoryStore()
		return st, func() { _ = st.Close() }, nil

	case "dev":
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start embedded redis: %w", err)
		}
		logger.Info("using embedded redis", "addr", mr.Addr())

		st, err := store.NewRedisStore(ctx, mr.Addr(), rc.TTL.Duration())
		if err != nil {
			mr.Close()
			return nil, nil, err
		}
		return st, func() {
			_ = st.Close()
			mr.Close()
		}, nil

	default:
		st, err := store.NewRedisStore(ctx, rc.Addr, rc.TTL.Duration())
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using redis", "addr", rc.Addr)
		return st, func() { _ = st.Close() }, nil
	}
}
