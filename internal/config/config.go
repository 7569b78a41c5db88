package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tcron/internal/core"
)

// Mode selects which surfaces the daemon serves.
type Mode string

const (
	ModeHTTP Mode = "http"
	ModeMCP  Mode = "mcp"
	ModeBoth Mode = "both"
)

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
	Mode      Mode
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Bark BarkConfig
}

// ExecConfig selects the interpreters scripts run under.
type ExecConfig struct {
	Shell  string
	Python string
}

// HousekeepingConfig controls metric sampling and history pruning.
type HousekeepingConfig struct {
	MetricsInterval  time.Duration
	HistoryRetention time.Duration
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Notification NotificationConfig
	Exec         ExecConfig
	Housekeeping HousekeepingConfig

	StateDir        string
	ShutdownGrace   time.Duration
	MalformedPolicy core.MalformedPolicy
}

const (
	defaultAddr             = "0.0.0.0:7070"
	defaultLogLevel         = "info"
	defaultShutdownGrace    = 5 * time.Second
	defaultHistoryRetention = 30 * 24 * time.Hour
	defaultMetricsInterval  = time.Minute
	defaultShell            = "/bin/sh"
	defaultPython           = "python3"
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration accepts Go durations and, for retention-style values, a bare number of days ("30d").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	if d, err := parseDuration(val); err == nil {
		return d
	}
	return defaultVal
}

func parseDuration(val string) (time.Duration, error) {
	val = strings.TrimSpace(val)
	if days, found := strings.CutSuffix(val, "d"); found {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(val)
}

// LoadDotEnv loads .env from the working directory and the user config directory.
// Missing files are ignored and already-set variables win.
func LoadDotEnv() {
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "tcron", ".env"))
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}
}

// FromEnv builds a Config from environment variables and defaults.
func FromEnv() (*Config, error) {
	policy, err := core.ParseMalformedPolicy(getEnvString("TCRON_MALFORMED_POLICY", string(core.PolicyFail)))
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("TCRON_ADDR", defaultAddr),
			AuthToken: getEnvString("TCRON_AUTH_TOKEN", ""),
			Mode:      Mode(strings.ToLower(getEnvString("TCRON_MODE", string(ModeHTTP)))),
		},
		Log: LogConfig{
			Level: getEnvString("TCRON_LOG_LEVEL", defaultLogLevel),
		},
		Notification: NotificationConfig{
			Bark: BarkConfig{
				URL:     getEnvString("TCRON_BARK_URL", ""),
				Enabled: getEnvBool("TCRON_BARK_ENABLED", false),
			},
		},
		Exec: ExecConfig{
			Shell:  getEnvString("TCRON_SHELL", defaultShell),
			Python: getEnvString("TCRON_PYTHON", defaultPython),
		},
		Housekeeping: HousekeepingConfig{
			MetricsInterval:  getEnvDuration("TCRON_METRICS_INTERVAL", defaultMetricsInterval),
			HistoryRetention: getEnvDuration("TCRON_HISTORY_RETENTION", defaultHistoryRetention),
		},
		StateDir:        getEnvString("TCRON_STATE_DIR", ""),
		ShutdownGrace:   getEnvDuration("TCRON_SHUTDOWN_GRACE", defaultShutdownGrace),
		MalformedPolicy: policy,
	}
	return cfg, nil
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > Environment variables > .env file > defaults
func Parse(args []string) (*Config, error) {
	LoadDotEnv()
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("tcrond", flag.ContinueOnError)
	var addr, logLevel, stateDir, mode, policy string
	var shutdownGrace time.Duration
	fs.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	fs.StringVar(&stateDir, "state-dir", "", "Directory to store the database and saved scripts")
	fs.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&mode, "mode", "", "Surfaces to serve: http, mcp or both")
	fs.StringVar(&policy, "malformed-policy", "", "What to do with undecodable rows: fail, skip or default")
	fs.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if mode != "" {
		cfg.Server.Mode = Mode(strings.ToLower(mode))
	}
	if policy != "" {
		p, err := core.ParseMalformedPolicy(policy)
		if err != nil {
			return nil, err
		}
		cfg.MalformedPolicy = p
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "shutdown-grace" {
			cfg.ShutdownGrace = shutdownGrace
		}
	})

	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve validates the config and fills the default state dir.
func (c *Config) Resolve() error {
	switch c.Server.Mode {
	case ModeHTTP, ModeMCP, ModeBoth:
	default:
		return fmt.Errorf("unknown mode %q", c.Server.Mode)
	}
	if c.StateDir == "" {
		dir, err := DefaultStateDir()
		if err != nil {
			return fmt.Errorf("resolve default state dir: %w", err)
		}
		c.StateDir = dir
	}
	if c.Housekeeping.MetricsInterval < time.Second {
		c.Housekeeping.MetricsInterval = defaultMetricsInterval
	}
	if c.Housekeeping.HistoryRetention <= 0 {
		c.Housekeeping.HistoryRetention = defaultHistoryRetention
	}
	return nil
}

// DefaultStateDir returns <UserConfigDir>/tcron, creating it.
func DefaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "tcron")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
