package config

import (
	"strings"

	"github.com/bcrosbie/skillbench/internal/domain"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "SKILLBENCH"

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

type Config struct {
	GRPCAddr             string
	HTTPAddr             string
	StoreDriver          string
	DatabaseURL          string
	SQLitePath           string
	StoreConnectAttempts int
	ExecutionSecret      string
	ExecutorURL          string
	ExecutorToken        string
	LogLevel             string
	LogFormat            string
	TracingEnabled       bool
	TracingSampleRatio   float64
	EnableReflection     bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("grpc_addr", "127.0.0.1:50051")
	v.SetDefault("http_addr", "127.0.0.1:8080")
	v.SetDefault("store_driver", StoreDriverSQLite)
	v.SetDefault("database_url", "")
	v.SetDefault("sqlite_path", "./data/skillbench.db")
	v.SetDefault("store_connect_attempts", 5)
	v.SetDefault("execution_secret", "")
	v.SetDefault("executor_url", "")
	v.SetDefault("executor_token", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("tracing_sample_ratio", 1.0)
	v.SetDefault("enable_reflection", false)
}

// New returns a viper instance reading SKILLBENCH_* environment variables and
// an optional skillbench.yaml from the working directory or ~/.skillbench.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetConfigName("skillbench")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.skillbench")
	return v
}

// Load reads the configuration from v, or from New() when v is nil.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = New()
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, errors.Wrap(err, "failed to read config file")
		}
	}

	cfg := Config{
		GRPCAddr:             strings.TrimSpace(v.GetString("grpc_addr")),
		HTTPAddr:             strings.TrimSpace(v.GetString("http_addr")),
		StoreDriver:          strings.ToLower(strings.TrimSpace(v.GetString("store_driver"))),
		DatabaseURL:          strings.TrimSpace(v.GetString("database_url")),
		SQLitePath:           strings.TrimSpace(v.GetString("sqlite_path")),
		StoreConnectAttempts: v.GetInt("store_connect_attempts"),
		ExecutionSecret:      v.GetString("execution_secret"),
		ExecutorURL:          strings.TrimSpace(v.GetString("executor_url")),
		ExecutorToken:        v.GetString("executor_token"),
		LogLevel:             strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		LogFormat:            strings.ToLower(strings.TrimSpace(v.GetString("log_format"))),
		TracingEnabled:       v.GetBool("tracing_enabled"),
		TracingSampleRatio:   v.GetFloat64("tracing_sample_ratio"),
		EnableReflection:     v.GetBool("enable_reflection"),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return domain.InvalidArgument("SKILLBENCH_DATABASE_URL is required when SKILLBENCH_STORE_DRIVER=postgres")
		}
	case StoreDriverSQLite:
		if c.SQLitePath == "" {
			return domain.InvalidArgument("SKILLBENCH_SQLITE_PATH is required when SKILLBENCH_STORE_DRIVER=sqlite")
		}
	default:
		return domain.InvalidArgumentf("unsupported SKILLBENCH_STORE_DRIVER %q (want postgres or sqlite)", c.StoreDriver)
	}
	if c.StoreConnectAttempts < 1 {
		return domain.InvalidArgument("SKILLBENCH_STORE_CONNECT_ATTEMPTS must be at least 1")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return domain.InvalidArgumentf("unsupported SKILLBENCH_LOG_FORMAT %q (want text or json)", c.LogFormat)
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return domain.InvalidArgument("SKILLBENCH_TRACING_SAMPLE_RATIO must be within [0, 1]")
	}
	return nil
}
