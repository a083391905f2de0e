// Package config provides application configuration management with support for
// command-line flags, environment variables, and a TOML config file.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// envPrefix is prepended to every environment variable key.
const envPrefix = "FITCONV_"

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Paths    PathsConfig
	Server   ServerConfig
	Pipeline PipelineConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `validate:"required,oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `validate:"required,oneof=debug info warn error"`
}

// PathsConfig holds the watched directory layout.
type PathsConfig struct {
	// Inbox is the watched input directory.
	Inbox string `validate:"required"`
	// Outbox receives converted CSV artifacts.
	Outbox string `validate:"required"`
	// Quarantine holds permanently failed inputs for inspection.
	Quarantine string `validate:"required"`
	// Processed holds successfully converted inputs. Must be on the same
	// filesystem as Inbox so the post-conversion rename is atomic.
	Processed string `validate:"required"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string `validate:"required,numeric"`
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// PipelineConfig holds watch/convert pipeline configuration.
type PipelineConfig struct {
	// Backend selects the event source: OS notifications, directory
	// polling, or automatic selection.
	Backend string `validate:"required,oneof=auto notify poll"`
	// DebounceWindow is the quiet window after the last event before a
	// file counts as arrived.
	DebounceWindow time.Duration `validate:"gt=0"`
	// ProbeInterval is the delay between stabilization size samples.
	ProbeInterval time.Duration `validate:"gt=0"`
	// MaxSettleWait bounds the total stabilization wait. A file still
	// changing at this deadline is a permanent failure.
	MaxSettleWait time.Duration `validate:"gt=0"`
	// MaxProbeRounds optionally caps probe samples below what
	// MaxSettleWait allows. 0 means bounded by MaxSettleWait only.
	MaxProbeRounds int `validate:"gte=0"`
	// MaxAttempts caps conversion attempts per file.
	MaxAttempts int `validate:"gte=1"`
	// BackoffBase and BackoffCap bound the exponential retry delay.
	BackoffBase time.Duration `validate:"gt=0"`
	BackoffCap  time.Duration `validate:"gt=0"`
	// GracePeriod bounds how long Stop waits for in-flight conversions.
	GracePeriod time.Duration `validate:"gt=0"`
	// PollInterval is the directory scan cadence for the poll backend.
	PollInterval time.Duration `validate:"gt=0"`
	// Transform applies readability transforms to the CSV output
	// (pace mm:ss per mile, cadence as steps/min, coordinates in degrees).
	Transform bool
}

// fileConfig mirrors Config for TOML decoding. Durations are strings so a
// config file can say debounce_window = "500ms".
type fileConfig struct {
	Environment string `toml:"environment"`
	Logger      struct {
		Level string `toml:"level"`
	} `toml:"logger"`
	Paths struct {
		Inbox      string `toml:"inbox"`
		Outbox     string `toml:"outbox"`
		Quarantine string `toml:"quarantine"`
		Processed  string `toml:"processed"`
	} `toml:"paths"`
	Server struct {
		Port         string `toml:"port"`
		ReadTimeout  string `toml:"read_timeout"`
		WriteTimeout string `toml:"write_timeout"`
		IdleTimeout  string `toml:"idle_timeout"`
	} `toml:"server"`
	Pipeline struct {
		Backend        string `toml:"backend"`
		DebounceWindow string `toml:"debounce_window"`
		ProbeInterval  string `toml:"probe_interval"`
		MaxSettleWait  string `toml:"max_settle_wait"`
		MaxProbeRounds *int   `toml:"max_probe_rounds"`
		MaxAttempts    *int   `toml:"max_attempts"`
		BackoffBase    string `toml:"backoff_base"`
		BackoffCap     string `toml:"backoff_cap"`
		GracePeriod    string `toml:"grace_period"`
		PollInterval   string `toml:"poll_interval"`
		Transform      *bool  `toml:"transform"`
	} `toml:"pipeline"`
}

// Flags holds raw command-line overrides. Flag registration lives with the
// entry points so each binary can expose its own subset.
type Flags struct {
	ConfigFile  string
	Environment string
	LogLevel    string
	Inbox       string
	Outbox      string
	Quarantine  string
	Processed   string
	Port        string
	Backend     string
	MaxAttempts string
	Transform   string
}

// ParseFlags registers the standard command-line flags on the default flag
// set and parses them. Call once per process, before Load.
func ParseFlags() Flags {
	configFile := flag.String("config", "", "Path to TOML config file (default: config.toml)")
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	inbox := flag.String("inbox", "", "Directory to watch for .fit files")
	outbox := flag.String("outbox", "", "Directory to write CSV artifacts")
	quarantine := flag.String("quarantine", "", "Directory for permanently failed inputs")
	processed := flag.String("processed", "", "Directory for successfully converted inputs")
	port := flag.String("port", "", "HTTP server port (default: 8080)")
	backend := flag.String("watch-backend", "", "Event source backend (auto, notify, poll)")
	maxAttempts := flag.String("max-attempts", "", "Max conversion attempts per file (default: 3)")
	transform := flag.String("transform", "", "Apply readability transforms to CSV output (default: true)")

	flag.Parse()

	return Flags{
		ConfigFile:  *configFile,
		Environment: *env,
		LogLevel:    *logLevel,
		Inbox:       *inbox,
		Outbox:      *outbox,
		Quarantine:  *quarantine,
		Processed:   *processed,
		Port:        *port,
		Backend:     *backend,
		MaxAttempts: *maxAttempts,
		Transform:   *transform,
	}
}

// Load builds the configuration with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables (FITCONV_*).
// 3. TOML config file.
// 4. Default values (lowest priority).
func Load(flags Flags) (*Config, error) {
	file, err := loadFile(flags.ConfigFile)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Environment: pick(flags.Environment, "ENV", file.Environment, "development"),
		},
		Logger: LoggerConfig{
			Level: pick(flags.LogLevel, "LOG_LEVEL", file.Logger.Level, "info"),
		},
		Paths: PathsConfig{
			Inbox:      pick(flags.Inbox, "INBOX", file.Paths.Inbox, "inbox"),
			Outbox:     pick(flags.Outbox, "OUTBOX", file.Paths.Outbox, "outbox"),
			Quarantine: pick(flags.Quarantine, "QUARANTINE", file.Paths.Quarantine, ""),
			Processed:  pick(flags.Processed, "PROCESSED", file.Paths.Processed, ""),
		},
		Server: ServerConfig{
			Port: pick(flags.Port, "PORT", file.Server.Port, "8080"),
		},
		Pipeline: PipelineConfig{
			Backend:        pick(flags.Backend, "WATCH_BACKEND", file.Pipeline.Backend, "auto"),
			MaxProbeRounds: pickInt("", "MAX_PROBE_ROUNDS", file.Pipeline.MaxProbeRounds, 0),
			MaxAttempts:    pickInt(flags.MaxAttempts, "MAX_ATTEMPTS", file.Pipeline.MaxAttempts, 3),
			Transform:      pickBool(flags.Transform, "TRANSFORM", file.Pipeline.Transform, true),
		},
	}

	// Parse server timeouts.
	durations := []struct {
		dst      *time.Duration
		envKey   string
		fileVal  string
		fallback string
	}{
		{&cfg.Server.ReadTimeout, "SERVER_READ_TIMEOUT", file.Server.ReadTimeout, "15s"},
		{&cfg.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT", file.Server.WriteTimeout, "15s"},
		{&cfg.Server.IdleTimeout, "SERVER_IDLE_TIMEOUT", file.Server.IdleTimeout, "60s"},
		{&cfg.Pipeline.DebounceWindow, "DEBOUNCE_WINDOW", file.Pipeline.DebounceWindow, "500ms"},
		{&cfg.Pipeline.ProbeInterval, "PROBE_INTERVAL", file.Pipeline.ProbeInterval, "500ms"},
		{&cfg.Pipeline.MaxSettleWait, "MAX_SETTLE_WAIT", file.Pipeline.MaxSettleWait, "30s"},
		{&cfg.Pipeline.BackoffBase, "BACKOFF_BASE", file.Pipeline.BackoffBase, "1s"},
		{&cfg.Pipeline.BackoffCap, "BACKOFF_CAP", file.Pipeline.BackoffCap, "30s"},
		{&cfg.Pipeline.GracePeriod, "GRACE_PERIOD", file.Pipeline.GracePeriod, "30s"},
		{&cfg.Pipeline.PollInterval, "POLL_INTERVAL", file.Pipeline.PollInterval, "2s"},
	}
	for _, d := range durations {
		raw := pick("", d.envKey, d.fileVal, d.fallback)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", strings.ToLower(d.envKey), raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all config values are present and consistent.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}

	if c.Pipeline.BackoffCap < c.Pipeline.BackoffBase {
		return fmt.Errorf("backoff cap %s is below backoff base %s",
			c.Pipeline.BackoffCap, c.Pipeline.BackoffBase)
	}
	if c.Paths.Inbox == c.Paths.Outbox {
		return fmt.Errorf("inbox and outbox must be distinct directories")
	}
	if c.Paths.Inbox == c.Paths.Quarantine || c.Paths.Inbox == c.Paths.Processed {
		return fmt.Errorf("quarantine and processed directories must not be the inbox itself")
	}
	return nil
}

// expandPaths expands ~ and makes all directory paths absolute. Quarantine
// and processed default to siblings of the inbox when unset.
func (c *Config) expandPaths() error {
	inbox, err := expandPath(c.Paths.Inbox, "")
	if err != nil {
		return fmt.Errorf("invalid inbox path: %w", err)
	}
	c.Paths.Inbox = inbox

	outbox, err := expandPath(c.Paths.Outbox, "")
	if err != nil {
		return fmt.Errorf("invalid outbox path: %w", err)
	}
	c.Paths.Outbox = outbox

	parent := filepath.Dir(c.Paths.Inbox)

	quarantine, err := expandPath(c.Paths.Quarantine, filepath.Join(parent, "quarantine"))
	if err != nil {
		return fmt.Errorf("invalid quarantine path: %w", err)
	}
	c.Paths.Quarantine = quarantine

	processed, err := expandPath(c.Paths.Processed, filepath.Join(parent, "processed"))
	if err != nil {
		return fmt.Errorf("invalid processed path: %w", err)
	}
	c.Paths.Processed = processed

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		path = defaultPath
	}
	if path == "" {
		return "", nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// loadFile decodes the TOML config file. A missing file is not an error:
// the default path is optional, and an explicit path that does not exist
// falls through to env/defaults the same way.
func loadFile(path string) (*fileConfig, error) {
	if path == "" {
		path = "config.toml"
	}

	var fc fileConfig
	data, err := os.ReadFile(path) //#nosec G304 -- config file path from user input is expected
	if err != nil {
		if os.IsNotExist(err) {
			return &fc, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}

// pick returns the first non-empty value from flag, env var, config file,
// or default.
func pick(flagValue, envKey, fileValue, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envPrefix + envKey); envValue != "" {
		return envValue
	}
	if fileValue != "" {
		return fileValue
	}
	return defaultValue
}

// pickInt resolves an int the same way. The config file uses a pointer so an
// explicit zero is distinguishable from an absent key.
func pickInt(flagValue, envKey string, fileValue *int, defaultValue int) int {
	str := flagValue
	if str == "" {
		str = os.Getenv(envPrefix + envKey)
	}
	if str != "" {
		var result int
		if _, err := fmt.Sscanf(str, "%d", &result); err == nil {
			return result
		}
		return defaultValue
	}
	if fileValue != nil {
		return *fileValue
	}
	return defaultValue
}

// pickBool resolves a bool the same way.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func pickBool(flagValue, envKey string, fileValue *bool, defaultValue bool) bool {
	str := flagValue
	if str == "" {
		str = os.Getenv(envPrefix + envKey)
	}
	if str != "" {
		str = strings.ToLower(str)
		return str == "true" || str == "1" || str == "yes"
	}
	if fileValue != nil {
		return *fileValue
	}
	return defaultValue
}
