package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xraph/bystander"
	"github.com/xraph/bystander/queue"
)

// cliConfig is the merged view of the config file, BYSTANDER_* variables
// and flags. Zero values fall back to bystander.DefaultConfig.
type cliConfig struct {
	Redis struct {
		Addr         string        `mapstructure:"addr"`
		Password     string        `mapstructure:"password"`
		DB           int           `mapstructure:"db"`
		JobRetention time.Duration `mapstructure:"job_retention"`
	} `mapstructure:"redis"`

	Directory string `mapstructure:"directory"`

	RequestTTL        time.Duration `mapstructure:"request_ttl"`
	ResponseTimeout   time.Duration `mapstructure:"response_timeout"`
	MinCandidates     int           `mapstructure:"min_candidates"`
	Concurrency       int           `mapstructure:"concurrency"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	StaleJobThreshold time.Duration `mapstructure:"stale_job_threshold"`

	Queues          []queue.Config `mapstructure:"queues"`
	GlobalRateLimit float64        `mapstructure:"global_rate_limit"`
	GlobalRateBurst int            `mapstructure:"global_rate_burst"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	JSON bool `mapstructure:"json"`
}

func readConfigFile(v *viper.Viper) error {
	path := v.GetString("config")
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func loadConfig(v *viper.Viper) (cliConfig, error) {
	var c cliConfig
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

// bystanderConfig overlays the non-zero settings on the defaults.
func (c cliConfig) bystanderConfig() bystander.Config {
	cfg := bystander.DefaultConfig()
	setIf(&cfg.RequestTTL, c.RequestTTL)
	setIf(&cfg.ResponseTimeout, c.ResponseTimeout)
	setIf(&cfg.MinCandidates, c.MinCandidates)
	setIf(&cfg.Concurrency, c.Concurrency)
	setIf(&cfg.PollInterval, c.PollInterval)
	setIf(&cfg.ShutdownTimeout, c.ShutdownTimeout)
	setIf(&cfg.HeartbeatInterval, c.HeartbeatInterval)
	setIf(&cfg.StaleJobThreshold, c.StaleJobThreshold)

	names := make([]string, 0, len(c.Queues))
	for _, q := range c.Queues {
		names = append(names, q.Name)
	}
	if len(names) > 0 {
		cfg.Queues = names
	}
	return cfg
}

func setIf[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

// newLogger writes to w, which is stderr outside tests.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
