// Command gossipnode runs one broadcast node speaking newline-delimited
// JSON on stdin and stdout. Logs go to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gossipnode/internal/admin"
	"gossipnode/internal/config"
	"gossipnode/internal/node"
	"gossipnode/internal/telemetry"
)

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2

	adminShutdownTimeout = 5 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:], os.Getenv, os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, getenv func(string) string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Load("gossipnode", args, getenv, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "gossipnode: %v\n", err)
		return exitUsage
	}

	logger := newLogger(cfg.LogLevel, stderr)
	defer logger.Sync()

	metrics := telemetry.New()
	opts := node.Options{
		GossipInterval: cfg.GossipInterval,
		QueueSize:      cfg.QueueSize,
		JoinTimeout:    cfg.JoinTimeout,
		Logger:         logger,
		Metrics:        metrics,
	}

	if cfg.AdminAddr != "" || cfg.MetricsAddr != "" {
		adm := admin.New(metrics, logger.Named("admin"))
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
			defer cancel()
			if err := adm.Shutdown(ctx); err != nil {
				logger.Warn("admin shutdown", zap.Error(err))
			}
		}()

		if cfg.AdminAddr != "" {
			if err := adm.ServeGRPC(cfg.AdminAddr); err != nil {
				logger.Error("admin grpc", zap.Error(err))
				return exitFatal
			}
		}
		if cfg.MetricsAddr != "" {
			if err := adm.ServeHTTP(cfg.MetricsAddr); err != nil {
				logger.Error("admin http", zap.Error(err))
				return exitFatal
			}
		}
		opts.Status = adm
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting",
		zap.Duration("gossip_interval", cfg.GossipInterval),
		zap.Int("queue_size", cfg.QueueSize),
	)
	if err := node.Serve(ctx, stdin, stdout, opts); err != nil {
		logger.Error("node failed", zap.Error(err))
		return exitFatal
	}
	logger.Info("stopped")
	return exitOK
}

// newLogger builds a JSON logger on w. stdout carries protocol traffic
// only, so logs never go there.
func newLogger(level zapcore.Level, w io.Writer) *zap.Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)
	return zap.New(core, zap.AddCaller())
}
