// internal/config/historian.go
package config

import (
	"errors"
	"time"

	"github.com/jason-s-yu/hideandseek/internal/historian"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// HistorianConfig configures the round history consumer.
type HistorianConfig struct {
	LogLevel string
	LogJSON  bool

	RedisAddr  string
	RedisDB    int
	RedisQueue string

	DatabaseURL   string
	EnsureSchema  bool
	BatchSize     int
	FlushInterval time.Duration
	Inactivity    time.Duration
}

func (c *HistorianConfig) Validate() error {
	var errs []error
	if c.RedisAddr == "" {
		errs = append(errs, errors.New("--redis-addr is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("--database-url is required"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.BatchSize < 1 {
		errs = append(errs, errors.New("batch size must be at least 1"))
	}
	if c.FlushInterval <= 0 || c.Inactivity <= 0 {
		errs = append(errs, errors.New("flush interval and inactivity timeout must be positive"))
	}
	return errors.Join(errs...)
}

// Service returns the consumer settings.
func (c *HistorianConfig) Service() historian.Config {
	cfg := historian.DefaultConfig()
	cfg.QueueName = c.RedisQueue
	cfg.BatchSize = c.BatchSize
	cfg.FlushInterval = c.FlushInterval
	cfg.Inactivity = c.Inactivity
	return cfg
}

// NewHistorianCommand builds the root command of the history consumer.
func NewHistorianCommand(cfg *HistorianConfig, version string, run func(cmd *cobra.Command, cfg *HistorianConfig) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hideandseek-historian",
		Short:         "Persists hide-and-seek round history from Redis into PostgreSQL.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	fs := cmd.Flags()
	normalizeFlags(fs)

	defaults := historian.DefaultConfig()

	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level (env: HIDESEEK_LOG_LEVEL)")
	fs.BoolVar(&cfg.LogJSON, "log-json", false, "log as JSON (env: HIDESEEK_LOG_JSON)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "localhost:6379", "redis address (env: HIDESEEK_REDIS_ADDR)")
	fs.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database number (env: HIDESEEK_REDIS_DB)")
	fs.StringVar(&cfg.RedisQueue, "redis-queue", defaults.QueueName, "redis list holding round history (env: HIDESEEK_REDIS_QUEUE)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres URL (env: HIDESEEK_DATABASE_URL)")
	fs.BoolVar(&cfg.EnsureSchema, "ensure-schema", true, "create the history tables on startup (env: HIDESEEK_ENSURE_SCHEMA)")
	fs.IntVar(&cfg.BatchSize, "batch-size", defaults.BatchSize, "events written per transaction (env: HIDESEEK_BATCH_SIZE)")
	fs.DurationVar(&cfg.FlushInterval, "flush-interval", defaults.FlushInterval, "maximum time an event waits in a batch (env: HIDESEEK_FLUSH_INTERVAL)")
	fs.DurationVar(&cfg.Inactivity, "inactivity-timeout", defaults.Inactivity, "silence after which a round is marked abandoned (env: HIDESEEK_INACTIVITY_TIMEOUT)")

	bindEnv(fs)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("hideandseek-historian v{{.Version}}\n")

	return cmd
}
