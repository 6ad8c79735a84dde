package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"gossipnode/internal/gossip"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GOSSIPNODE_"

// Config holds the node configuration.
type Config struct {
	GossipInterval time.Duration
	QueueSize      int
	JoinTimeout    time.Duration
	LogLevel       zapcore.Level
	MetricsAddr    string // empty disables the HTTP listener
	AdminAddr      string // empty disables the gRPC listener
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		GossipInterval: gossip.DefaultInterval,
		QueueSize:      gossip.DefaultQueueSize,
		JoinTimeout:    gossip.DefaultJoinTimeout,
		LogLevel:       zapcore.InfoLevel,
	}
}

// Load builds a Config from defaults, then environment (via getenv), then
// command-line args. Flags win over environment.
func Load(name string, args []string, getenv func(string) string, stderr io.Writer) (Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.DurationVar(&cfg.GossipInterval, "gossip-interval", cfg.GossipInterval, "period between anti-entropy rounds")
	fs.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "capacity of the event queue")
	fs.DurationVar(&cfg.JoinTimeout, "join-timeout", cfg.JoinTimeout, "how long shutdown waits for producers")
	fs.Var(&levelFlag{&cfg.LogLevel}, "log-level", "debug, info, warn or error")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "HTTP listen address for /metrics and /healthz (empty disables)")
	fs.StringVar(&cfg.AdminAddr, "admin-addr", cfg.AdminAddr, "gRPC listen address for health and reflection (empty disables)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.GossipInterval <= 0 {
		errs = append(errs, fmt.Errorf("gossip interval must be positive, got %s", c.GossipInterval))
	}
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue size must be at least 1, got %d", c.QueueSize))
	}
	if c.JoinTimeout <= 0 {
		errs = append(errs, fmt.Errorf("join timeout must be positive, got %s", c.JoinTimeout))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if getenv == nil {
		return nil
	}
	lookup := func(key string) string {
		return strings.TrimSpace(getenv(EnvPrefix + key))
	}

	if v := lookup("GOSSIP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sGOSSIP_INTERVAL: %w", EnvPrefix, err)
		}
		c.GossipInterval = d
	}
	if v := lookup("QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sQUEUE_SIZE: %w", EnvPrefix, err)
		}
		c.QueueSize = n
	}
	if v := lookup("JOIN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sJOIN_TIMEOUT: %w", EnvPrefix, err)
		}
		c.JoinTimeout = d
	}
	if v := lookup("LOG_LEVEL"); v != "" {
		lvl, err := zapcore.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("%sLOG_LEVEL: %w", EnvPrefix, err)
		}
		c.LogLevel = lvl
	}
	if v := lookup("METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := lookup("ADMIN_ADDR"); v != "" {
		c.AdminAddr = v
	}
	return nil
}

// levelFlag adapts a zapcore.Level to flag.Value.
type levelFlag struct {
	level *zapcore.Level
}

func (f *levelFlag) String() string {
	if f.level == nil {
		return ""
	}
	return f.level.String()
}

func (f *levelFlag) Set(s string) error {
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return err
	}
	*f.level = lvl
	return nil
}
