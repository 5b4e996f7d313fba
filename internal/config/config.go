// internal/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jason-s-yu/hideandseek/internal/game"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

const EnvPrefix = "HIDESEEK"

// Config is everything the server binary can be told from flags or the environment.
type Config struct {
	ListenAddr string
	HTTPAddr   string
	PublicURL  string

	LogLevel string
	LogJSON  bool

	RedisAddr  string
	RedisDB    int
	RedisQueue string

	DatabaseURL string
	TasksTable  string
	TasksFile   string

	RateLimit float64
	RateBurst int
	QueueSize int

	RoundDuration    time.Duration
	HiderPrep        time.Duration
	WarningWindow    time.Duration
	WarningBuffer    time.Duration
	PostGameDelay    time.Duration
	InitialTaskSkips int
	MinPlayers       int
	MaxNameLength    int
	Phases           string
}

// Validate checks the listener addresses and the game settings derived from the config.
func (c *Config) Validate() error {
	var errs []error
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		errs = append(errs, fmt.Errorf("invalid listen address %q: %w", c.ListenAddr, err))
	}
	if c.HTTPAddr != "" {
		if _, _, err := net.SplitHostPort(c.HTTPAddr); err != nil {
			errs = append(errs, fmt.Errorf("invalid http address %q: %w", c.HTTPAddr, err))
		}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		errs = append(errs, errors.New("rate limit and burst must not be negative"))
	}
	if c.RateLimit > 0 && c.RateBurst == 0 {
		errs = append(errs, errors.New("rate burst must be positive when rate limiting is enabled"))
	}
	if c.DatabaseURL != "" && c.TasksFile != "" {
		errs = append(errs, errors.New("--database-url and --tasks-file are mutually exclusive"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	settings, err := c.Settings()
	if err != nil {
		return err
	}
	return settings.Validate()
}

// Settings builds the game rules. Fields that cannot be configured keep their defaults.
func (c *Config) Settings() (game.Settings, error) {
	s := game.DefaultSettings()
	s.RoundDuration = c.RoundDuration
	s.HiderPrep = c.HiderPrep
	s.WarningWindow = c.WarningWindow
	s.WarningBuffer = c.WarningBuffer
	s.PostGameDelay = c.PostGameDelay
	s.InitialTaskSkips = c.InitialTaskSkips
	s.MinPlayers = c.MinPlayers
	s.MaxNameLength = c.MaxNameLength

	if strings.TrimSpace(c.Phases) != "" {
		phases, err := ParsePhases(c.Phases)
		if err != nil {
			return game.Settings{}, err
		}
		s.Phases = phases
	}
	return s, nil
}

// Limit converts RateLimit into a limiter rate. Zero disables limiting.
func (c *Config) Limit() rate.Limit {
	if c.RateLimit <= 0 {
		return 0
	}
	return rate.Limit(c.RateLimit)
}

type phaseSpec struct {
	Kind            string `json:"kind"`
	DurationSeconds int    `json:"duration_seconds"`
	IntervalSeconds int    `json:"interval_seconds"`
	Updates         int    `json:"updates"`
}

// ParsePhases reads a broadcast schedule such as
//
//	[{"kind":"initial_reveal"},{"kind":"interval","duration_seconds":600,"interval_seconds":180}]
func ParsePhases(raw string) ([]game.Phase, error) {
	var specs []phaseSpec
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&specs); err != nil {
		return nil, fmt.Errorf("invalid phase schedule: %w", err)
	}

	phases := make([]game.Phase, 0, len(specs))
	for _, sp := range specs {
		phases = append(phases, game.Phase{
			Kind:     game.PhaseKind(strings.ToLower(sp.Kind)),
			Duration: time.Duration(sp.DurationSeconds) * time.Second,
			Interval: time.Duration(sp.IntervalSeconds) * time.Second,
			Updates:  sp.Updates,
		})
	}
	if err := game.ValidatePhases(phases); err != nil {
		return nil, fmt.Errorf("invalid phase schedule: %w", err)
	}
	return phases, nil
}

// NewCommand builds the root command. run is called with the populated config after validation.
func NewCommand(cfg *Config, version string, run func(cmd *cobra.Command, cfg *Config) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hideandseek",
		Short:         "Session server for a real-world hide-and-seek location game.",
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

	defaults := game.DefaultSettings()

	fs.StringVarP(&cfg.ListenAddr, "listen", "l", "0.0.0.0:65432", "address of the line-delimited JSON listener (env: HIDESEEK_LISTEN)")
	fs.StringVar(&cfg.HTTPAddr, "http", "", "address of the websocket gateway, disabled when empty (env: HIDESEEK_HTTP)")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "join URL encoded in /qr.png (env: HIDESEEK_PUBLIC_URL)")

	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level (env: HIDESEEK_LOG_LEVEL)")
	fs.BoolVar(&cfg.LogJSON, "log-json", false, "log as JSON (env: HIDESEEK_LOG_JSON)")

	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "redis address for round history, disabled when empty (env: HIDESEEK_REDIS_ADDR)")
	fs.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database number (env: HIDESEEK_REDIS_DB)")
	fs.StringVar(&cfg.RedisQueue, "redis-queue", "hideandseek_rounds", "redis list receiving round history (env: HIDESEEK_REDIS_QUEUE)")

	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres URL to load the task catalog from (env: HIDESEEK_DATABASE_URL)")
	fs.StringVar(&cfg.TasksTable, "tasks-table", "tasks", "postgres table holding the task catalog (env: HIDESEEK_TASKS_TABLE)")
	fs.StringVar(&cfg.TasksFile, "tasks-file", "", "JSON file holding the task catalog (env: HIDESEEK_TASKS_FILE)")

	fs.Float64Var(&cfg.RateLimit, "rate-limit", 10, "sustained inbound messages per second per client, 0 disables (env: HIDESEEK_RATE_LIMIT)")
	fs.IntVar(&cfg.RateBurst, "rate-burst", 10, "inbound message burst per client (env: HIDESEEK_RATE_BURST)")
	fs.IntVar(&cfg.QueueSize, "queue-size", 64, "outbound messages buffered per client (env: HIDESEEK_QUEUE_SIZE)")

	fs.DurationVar(&cfg.RoundDuration, "round-duration", defaults.RoundDuration, "length of a running round (env: HIDESEEK_ROUND_DURATION)")
	fs.DurationVar(&cfg.HiderPrep, "hider-prep", defaults.HiderPrep, "head start for hiders (env: HIDESEEK_HIDER_PREP)")
	fs.DurationVar(&cfg.WarningWindow, "warning-window", defaults.WarningWindow, "lead time of the location update warning (env: HIDESEEK_WARNING_WINDOW)")
	fs.DurationVar(&cfg.WarningBuffer, "warning-buffer", defaults.WarningBuffer, "extra spacing a phase needs to get warnings (env: HIDESEEK_WARNING_BUFFER)")
	fs.DurationVar(&cfg.PostGameDelay, "post-game-delay", defaults.PostGameDelay, "time results stay up before reset (env: HIDESEEK_POST_GAME_DELAY)")
	fs.IntVar(&cfg.InitialTaskSkips, "task-skips", defaults.InitialTaskSkips, "task skips per hider (env: HIDESEEK_TASK_SKIPS)")
	fs.IntVar(&cfg.MinPlayers, "min-players", defaults.MinPlayers, "confirmed players needed to start (env: HIDESEEK_MIN_PLAYERS)")
	fs.IntVar(&cfg.MaxNameLength, "max-name-length", defaults.MaxNameLength, "longest accepted player name (env: HIDESEEK_MAX_NAME_LENGTH)")
	fs.StringVar(&cfg.Phases, "phases", "", "JSON location broadcast schedule (env: HIDESEEK_PHASES)")

	bindEnv(fs)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("hideandseek v{{.Version}}\n")

	return cmd
}

// bindEnv lets HIDESEEK_<FLAG_NAME> supply any flag the command line did not set.
func bindEnv(fs *pflag.FlagSet) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func normalizeFlags(fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
}
