package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rpattn/afsync/internal/db"
	"github.com/rpattn/afsync/internal/logging"
	"github.com/rpattn/afsync/internal/notify"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. AFSYNC_DATABASE_HOST.
const EnvPrefix = "AFSYNC"

// Config is the full runtime configuration.
type Config struct {
	Database db.Config      `mapstructure:"database"`
	DataDir  string         `mapstructure:"data_dir" validate:"required"`
	Problems ProblemsConfig `mapstructure:"problems"`
	Log      logging.Config `mapstructure:"log"`
	Notify   notify.Config  `mapstructure:"notify"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// ProblemsConfig selects where markers and archive entries are kept.
type ProblemsConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=files badger"`
	// BadgerPath defaults to <data_dir>/problems.db.
	BadgerPath string `mapstructure:"badger_path"`
}

// MetricsConfig points at the node exporter textfile to write, if any.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// BadgerDir returns the badger directory of the problem store.
func (c Config) BadgerDir() string {
	if c.Problems.BadgerPath != "" {
		return c.Problems.BadgerPath
	}
	return filepath.Join(c.DataDir, "problems.db")
}

func setDefaults(v *viper.Viper) {
	defaults := db.DefaultConfig()
	v.SetDefault("database.host", defaults.Host)
	v.SetDefault("database.port", defaults.Port)
	v.SetDefault("database.user", defaults.User)
	v.SetDefault("database.password", defaults.Password)
	v.SetDefault("database.dbname", defaults.DBName)
	v.SetDefault("database.sslmode", defaults.SSLMode)

	v.SetDefault("data_dir", "./data")
	v.SetDefault("problems.backend", "files")
	v.SetDefault("problems.badger_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("notify.backend", string(notify.BackendNone))
	v.SetDefault("notify.subject_prefix", "[afsync]")
	v.SetDefault("notify.smtp.host", "")
	v.SetDefault("notify.smtp.port", 25)
	v.SetDefault("notify.smtp.user", "")
	v.SetDefault("notify.smtp.password", "")
	v.SetDefault("notify.smtp.from", "")
	v.SetDefault("notify.smtp.to", []string{})

	v.SetDefault("metrics.textfile", "")
}

// Load reads config.yaml from configPath, applies AFSYNC_* environment
// overrides and validates the result. A missing file is not an error.
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		cfg.File = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks struct constraints and cross-field rules.
func Validate(cfg Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			messages := make([]string, 0, len(invalid))
			for _, fe := range invalid {
				messages = append(messages, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Notify.Backend == notify.BackendSMTP {
		if cfg.Notify.SMTP.Host == "" || cfg.Notify.SMTP.From == "" || len(cfg.Notify.SMTP.To) == 0 {
			return errors.New("invalid config: notify.smtp needs host, from and to")
		}
	}
	return nil
}
