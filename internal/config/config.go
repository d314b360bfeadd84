// Package config resolves server settings from command-line flags, SWARM_*
// environment variables and an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/janisto/swarm-rest-example/internal/platform/logging"
)

// EnvPrefix namespaces environment variables: log_level is read from SWARM_LOG_LEVEL.
const EnvPrefix = "SWARM"

// DotEnvFile is loaded from the working directory when present.
const DotEnvFile = ".env"

const (
	DefaultPort            = 8080
	DefaultLogFileName     = "swarm.log"
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultDocsPath        = "/api-docs"
)

// Viper keys.
const (
	KeyPort            = "port"
	KeyLogFile         = "log_file"
	KeyLogLevel        = "log_level"
	KeyShutdownTimeout = "shutdown_timeout"
	KeyDocsPath        = "docs_path"
)

var (
	ErrInvalidPort            = errors.New("invalid port")
	ErrInvalidLogLevel        = errors.New("invalid log level")
	ErrInvalidShutdownTimeout = errors.New("invalid shutdown timeout")
	ErrInvalidDocsPath        = errors.New("invalid docs path")
)

// Config holds the resolved server settings.
type Config struct {
	Port            int
	LogFile         string
	LogLevel        zapcore.Level
	ShutdownTimeout time.Duration
	DocsPath        string
}

// Addr is the listen address for Port on all interfaces.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// DefaultLogFile returns swarm.log in the working directory.
func DefaultLogFile() string {
	wd, err := os.Getwd()
	if err != nil {
		return DefaultLogFileName
	}
	return filepath.Join(wd, DefaultLogFileName)
}

// NewViper returns a viper instance with defaults and environment lookup configured.
// PORT is honoured for the port when SWARM_PORT is unset.
func NewViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	// SWARM_LOG_FILE= must be able to switch the file sink off.
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	if err := v.BindEnv(KeyPort, EnvPrefix+"_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("bind port env: %w", err)
	}

	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyLogFile, DefaultLogFile())
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyShutdownTimeout, DefaultShutdownTimeout)
	v.SetDefault(KeyDocsPath, DefaultDocsPath)
	return v, nil
}

// RegisterFlags adds the server flags to fs and binds each of them to its viper key.
func RegisterFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.Int("port", DefaultPort, "HTTP listen port (env SWARM_PORT or PORT)")
	fs.String("log-file", DefaultLogFile(), "plain-text log file, empty disables it")
	fs.String("log-level", DefaultLogLevel, "minimum log level: debug, info, warn or error")
	fs.Duration("shutdown-timeout", DefaultShutdownTimeout, "grace period for in-flight requests on shutdown")
	fs.String("docs-path", DefaultDocsPath, "path of the interactive API docs, empty disables them")

	bindings := []struct{ key, flag string }{
		{KeyPort, "port"},
		{KeyLogFile, "log-file"},
		{KeyLogLevel, "log-level"},
		{KeyShutdownTimeout, "shutdown-timeout"},
		{KeyDocsPath, "docs-path"},
	}
	for _, b := range bindings {
		if err := v.BindPFlag(b.key, fs.Lookup(b.flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", b.flag, err)
		}
	}
	return nil
}

// LoadDotEnv reads path into the process environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load resolves and validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:     DefaultPort,
		LogFile:  strings.TrimSpace(v.GetString(KeyLogFile)),
		DocsPath: strings.TrimSpace(v.GetString(KeyDocsPath)),
	}

	// An empty PORT is treated as unset.
	if raw := strings.TrimSpace(v.GetString(KeyPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			return Config{}, fmt.Errorf("%w: %q", ErrInvalidPort, raw)
		}
		cfg.Port = port
	}

	rawLevel := strings.TrimSpace(v.GetString(KeyLogLevel))
	level, err := logging.ParseLevel(rawLevel)
	if err != nil || level < zapcore.DebugLevel || level > zapcore.ErrorLevel {
		return Config{}, fmt.Errorf("%w: %q", ErrInvalidLogLevel, rawLevel)
	}
	cfg.LogLevel = level

	// Unparseable durations come back as zero.
	timeout := v.GetDuration(KeyShutdownTimeout)
	if timeout <= 0 {
		return Config{}, fmt.Errorf("%w: %q", ErrInvalidShutdownTimeout, v.GetString(KeyShutdownTimeout))
	}
	cfg.ShutdownTimeout = timeout

	if cfg.DocsPath != "" && !strings.HasPrefix(cfg.DocsPath, "/") {
		return Config{}, fmt.Errorf("%w: %q must start with /", ErrInvalidDocsPath, cfg.DocsPath)
	}
	return cfg, nil
}
