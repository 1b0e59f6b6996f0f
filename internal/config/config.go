package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway" mapstructure:"gateway"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// GatewayConfig configures the oracle gateway client and the session
// defaults.
type GatewayConfig struct {
	URL              string  `yaml:"url" mapstructure:"url"`
	AccessCode       string  `yaml:"access_code" mapstructure:"access_code"`
	Direct           bool    `yaml:"direct" mapstructure:"direct"`
	ReadTimeoutSecs  int     `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs int     `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Provider         string  `yaml:"provider" mapstructure:"provider"`
	Model            string  `yaml:"model" mapstructure:"model"`
}

// ReadTimeout returns the read-only request timeout.
func (g GatewayConfig) ReadTimeout() time.Duration {
	return time.Duration(g.ReadTimeoutSecs) * time.Second
}

// WriteTimeout returns the state-changing request timeout.
func (g GatewayConfig) WriteTimeout() time.Duration {
	return time.Duration(g.WriteTimeoutSecs) * time.Second
}

// PipelineConfig configures resolution runs.
type PipelineConfig struct {
	StrictMode bool     `yaml:"strict_mode" mapstructure:"strict_mode"`
	Collectors []string `yaml:"collectors" mapstructure:"collectors"`
	Mode       string   `yaml:"mode" mapstructure:"mode"`
	SingleCall bool     `yaml:"single_call" mapstructure:"single_call"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

var (
	validDrivers = []string{"sqlite", "postgres", "none"}
	validModes   = []string{"", "live", "replay", "dry_run", "development", "api"}
)

// Load reads configuration from ./config.yaml, if present, and the
// environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. Unlike the default
// ./config.yaml, an explicit file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("RESOLUTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one so env overrides are picked up by Unmarshal.
	v.SetDefault("gateway.url", "http://localhost:8000")
	v.SetDefault("gateway.access_code", "")
	v.SetDefault("gateway.direct", false)
	v.SetDefault("gateway.read_timeout_secs", 30)
	v.SetDefault("gateway.write_timeout_secs", 300)
	v.SetDefault("gateway.rate_per_sec", 0)
	v.SetDefault("gateway.provider", "")
	v.SetDefault("gateway.model", "")
	v.SetDefault("pipeline.strict_mode", true)
	v.SetDefault("pipeline.collectors", []string{})
	v.SetDefault("pipeline.mode", "")
	v.SetDefault("pipeline.single_call", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "resolution.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("batch.max_concurrent", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a command mode depends on. Modes: "gateway"
// (talks to the gateway only), "resolve" (gateway and store), "store"
// (store only) and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	gateway := func() {
		if strings.TrimSpace(c.Gateway.URL) == "" {
			errs = append(errs, "gateway.url is required")
		}
		if strings.TrimSpace(c.Gateway.AccessCode) == "" {
			errs = append(errs, "gateway.access_code is required")
		}
		if c.Gateway.ReadTimeoutSecs <= 0 || c.Gateway.WriteTimeoutSecs <= 0 {
			errs = append(errs, "gateway timeouts must be > 0")
		}
		if c.Gateway.RatePerSec < 0 {
			errs = append(errs, "gateway.rate_per_sec must be >= 0")
		}
		if !slices.Contains(validModes, strings.ToLower(c.Pipeline.Mode)) {
			errs = append(errs, fmt.Sprintf("pipeline.mode %q is not recognized", c.Pipeline.Mode))
		}
	}
	storage := func() {
		if !slices.Contains(validDrivers, c.Store.Driver) {
			errs = append(errs, fmt.Sprintf("store.driver must be one of %s", strings.Join(validDrivers, ", ")))
		}
		if c.Store.Driver != "none" && strings.TrimSpace(c.Store.DatabaseURL) == "" {
			errs = append(errs, "store.database_url is required")
		}
		if c.Store.MinConns > c.Store.MaxConns && c.Store.MaxConns > 0 {
			errs = append(errs, "store.min_conns must not exceed store.max_conns")
		}
	}

	switch mode {
	case "gateway":
		gateway()
	case "store":
		storage()
	case "resolve":
		gateway()
		storage()
		if c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 32 {
			errs = append(errs, "batch.max_concurrent must be between 1 and 32")
		}
	case "serve":
		gateway()
		storage()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
