package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"govsync/internal/bootstrap/logging"
	"govsync/internal/errs"
)

type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Log           LogConfig           `mapstructure:"log"`
	Database      DatabaseConfig      `mapstructure:"database"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Governance    GovernanceConfig    `mapstructure:"governance"`
	RequestSource RequestSourceConfig `mapstructure:"request_source"`
	VotingPower   VotingPowerConfig   `mapstructure:"voting_power"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Events        EventsConfig        `mapstructure:"events"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type HTTPConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type GovernanceConfig struct {
	Scopes                  []string      `mapstructure:"scopes"`
	ReconcileInterval       time.Duration `mapstructure:"reconcile_interval"`
	ReconcileConcurrency    int           `mapstructure:"reconcile_concurrency"`
	MinVotingPowerToPropose uint64        `mapstructure:"min_voting_power_to_propose"`
	ApproveReason           string        `mapstructure:"approve_reason"`
	RejectReason            string        `mapstructure:"reject_reason"`
}

type RequestSourceConfig struct {
	Driver  string        `mapstructure:"driver"`
	BaseURL string        `mapstructure:"base_url"`
	File    string        `mapstructure:"file"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type VotingPowerConfig struct {
	Driver  string        `mapstructure:"driver"`
	BaseURL string        `mapstructure:"base_url"`
	File    string        `mapstructure:"file"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxElapsed      time.Duration `mapstructure:"max_elapsed"`
	MaxTries        uint          `mapstructure:"max_tries"`
}

type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, errs.Wrap(err, "load .env")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GOVSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			// Keep default and env-backed config when no file is present.
			logging.Warn(logCtx, "config file not found, fallback to defaults and env", slog.String("path", configFile))
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("request_source", cfg.RequestSource.Driver),
		slog.String("voting_power", cfg.VotingPower.Driver),
		slog.Int("scopes", len(cfg.Governance.Scopes)),
	)

	return cfg, nil
}

func (c Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	switch c.RequestSource.Driver {
	case "http":
		if c.RequestSource.BaseURL == "" {
			return errors.New("request_source.base_url is required for the http driver")
		}
	case "file":
		if c.RequestSource.File == "" {
			return errors.New("request_source.file is required for the file driver")
		}
	default:
		return fmt.Errorf("unsupported request_source.driver %q", c.RequestSource.Driver)
	}
	switch c.VotingPower.Driver {
	case "http":
		if c.VotingPower.BaseURL == "" {
			return errors.New("voting_power.base_url is required for the http driver")
		}
	case "file":
		if c.VotingPower.File == "" {
			return errors.New("voting_power.file is required for the file driver")
		}
	case "static":
	default:
		return fmt.Errorf("unsupported voting_power.driver %q", c.VotingPower.Driver)
	}
	if c.Governance.ReconcileConcurrency <= 0 {
		return errors.New("governance.reconcile_concurrency must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "govsync")
	v.SetDefault("app.env", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".govsync/state/governance.sqlite")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.rate_limit_rps", 2.0)
	v.SetDefault("http.rate_limit_burst", 5)
	v.SetDefault("auth.issuer", "govsync")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("governance.scopes", []string{})
	v.SetDefault("governance.reconcile_interval", 5*time.Second)
	v.SetDefault("governance.reconcile_concurrency", 4)
	v.SetDefault("governance.min_voting_power_to_propose", 10_000)
	v.SetDefault("governance.approve_reason", "Community vote passed")
	v.SetDefault("governance.reject_reason", "Community vote rejected")
	v.SetDefault("request_source.driver", "file")
	v.SetDefault("request_source.file", "configs/requests.yaml")
	v.SetDefault("request_source.timeout", 5*time.Second)
	v.SetDefault("voting_power.driver", "static")
	v.SetDefault("voting_power.file", "configs/voting_power.toml")
	v.SetDefault("voting_power.timeout", 5*time.Second)
	v.SetDefault("retry.initial_interval", 200*time.Millisecond)
	v.SetDefault("retry.max_interval", 2*time.Second)
	v.SetDefault("retry.max_elapsed", 10*time.Second)
	v.SetDefault("retry.max_tries", 5)
	v.SetDefault("events.subject_prefix", "govsync")
}
