// Package config loads layered runtime configuration.
//
// Precedence, lowest first: defaults, config file, environment (a .env file
// is loaded into the environment first), runtime overrides.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/3leaps/runprogress/pkg/progress"
)

// Identity of the application for config file and environment lookup.
const (
	AppName   = "runprogress"
	EnvPrefix = "RUNPROGRESS"
)

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	RunDir    RunDirConfig    `mapstructure:"rundir"`
	Estimator EstimatorConfig `mapstructure:"estimator"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig controls the server logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// RunDirConfig locates the run directory.
type RunDirConfig struct {
	// Base is a filesystem path, a file:// URI or an s3://bucket/prefix URI.
	Base string   `mapstructure:"base"`
	S3   S3Config `mapstructure:"s3"`
}

// S3Config applies when Base is an s3:// URI.
type S3Config struct {
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// EstimatorConfig holds the progress heuristic tunables.
type EstimatorConfig struct {
	BaselineFilesPerYear float64       `mapstructure:"baseline_files_per_year"`
	FallbackPerYear      time.Duration `mapstructure:"fallback_per_year"`
	PlateauPercent       float64       `mapstructure:"plateau_percent"`
	PlateauRemaining     time.Duration `mapstructure:"plateau_remaining"`
	Separator            string        `mapstructure:"separator"`
	Include              string        `mapstructure:"include"`
}

// ProgressConfig converts the tunables to a progress.Config.
func (e EstimatorConfig) ProgressConfig() progress.Config {
	return progress.Config{
		BaselineFilesPerYear: e.BaselineFilesPerYear,
		FallbackPerYear:      e.FallbackPerYear,
		PlateauPercent:       e.PlateauPercent,
		PlateauRemaining:     e.PlateauRemaining,
		Separator:            e.Separator,
		Include:              e.Include,
	}
}

// RateLimitConfig limits GET /job/status across all clients.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// Load reads configuration from defaults, the first config file found in the
// user config paths, and the environment, then applies overrides in order.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", overrides...)
}

// LoadFile is Load with an explicit config file. An empty path searches the
// user config paths; a missing searched file is not an error.
func LoadFile(ctx context.Context, path string, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if found := findConfigFile(); found != "" {
		v.SetConfigFile(found)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", found, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range bindings() {
		if err := v.BindEnv(append([]string{spec.key}, spec.names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.key, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Profile = strings.ToLower(strings.TrimSpace(cfg.Logging.Profile))

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set are left alone. An empty path tries ".env" and
// ignores its absence.
func LoadDotEnv(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Validate checks values that cannot be caught while decoding.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [0, 65535], got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}
	if strings.TrimSpace(c.RunDir.Base) == "" {
		return fmt.Errorf("rundir.base is required")
	}
	switch c.Logging.Profile {
	case "structured", "console":
	default:
		return fmt.Errorf("logging.profile must be structured or console, got %q", c.Logging.Profile)
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RPS <= 0 {
			return fmt.Errorf("ratelimit.rps must be > 0 when rate limiting is enabled")
		}
		if c.RateLimit.Burst < 1 {
			return fmt.Errorf("ratelimit.burst must be >= 1 when rate limiting is enabled")
		}
	}
	if err := c.Estimator.ProgressConfig().Validate(); err != nil {
		return fmt.Errorf("estimator: %w", err)
	}
	return nil
}

// findConfigFile returns the first existing file among the app config
// search paths, XDG config dir first and working directory last.
func findConfigFile() string {
	for _, p := range gfconfig.GetAppConfigPaths(AppName) {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// flatten turns nested override maps into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
