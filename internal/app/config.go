package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yungbote/coverage-backend/internal/http/handlers"
	"github.com/yungbote/coverage-backend/internal/http/middleware"
)

const (
	configName = "coverage"
	envPrefix  = "COVERAGE"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
	Store   StoreConfig   `mapstructure:"store"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Archive ArchiveConfig `mapstructure:"archive"`
	OTel    OTelConfig    `mapstructure:"otel"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Merge   MergeConfig   `mapstructure:"merge"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MetricsConfig struct {
	// Addr of the observability listener; empty disables it.
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	Channel string `mapstructure:"channel"`
}

type ArchiveConfig struct {
	Bucket          string `mapstructure:"bucket"`
	EmulatorHost    string `mapstructure:"emulator_host"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type OTelConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type CORSConfig struct {
	Origins []string `mapstructure:"origins"`
}

type MergeConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// LoadConfig reads defaults, then an optional coverage.yaml (or the file at
// configPath), then COVERAGE_* environment variables. A missing config file
// is not an error.
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/coverage")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	// Env values for list keys arrive as one comma separated string.
	cfg.CORS.Origins = splitList(strings.Join(cfg.CORS.Origins, ","))
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.max_body_bytes", handlers.DefaultMaxBodyBytes)
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("log.mode", "development")

	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.dsn", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.channel", "coverage.reports")

	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.emulator_host", "")
	v.SetDefault("archive.credentials_file", "")

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.service_name", "coverage")
	v.SetDefault("otel.environment", "")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.insecure", false)
	v.SetDefault("otel.sample_ratio", 1.0)

	v.SetDefault("cors.origins", middleware.DefaultCORSOrigins)
	v.SetDefault("merge.concurrency", 8)
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Store.Driver) {
	case StoreMemory:
	case StorePostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("store.dsn is required for postgres")
		}
	case StoreSQLite:
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr is required")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return errors.New("http.max_body_bytes must be positive")
	}
	if c.Merge.Concurrency <= 0 {
		return errors.New("merge.concurrency must be positive")
	}
	if c.Redis.Addr != "" && strings.ToLower(c.Store.Driver) == StoreMemory {
		return errors.New("redis.addr requires a shared store.driver")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
