package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// AppFs is the filesystem used to look for .env files.
var AppFs = afero.NewOsFs()

const (
	SplitterPlain  = "plain"
	SplitterQuoted = "quoted"

	// DefaultDSN is used when neither dsn nor DATABASE_URL is set.
	DefaultDSN = "./sqlrun.db"
)

// Config holds the settings shared by all commands.
type Config struct {
	Driver        string
	DSN           string
	Splitter      string
	Strict        bool
	LogLevel      string
	WatchDebounce time.Duration
}

// SetDefaults registers default values on viper.
func SetDefaults() {
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("splitter", SplitterPlain)
	viper.SetDefault("strict", false)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("watch.debounce", "500ms")
}

// Init wires viper to the config file, SQLRUN_ environment variables and .env
// files. A missing config file is not an error.
func Init() error {
	SetDefaults()

	viper.SetEnvPrefix("SQLRUN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("sqlrun")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := homedir.Dir(); err == nil {
		viper.AddConfigPath(home)
		viper.AddConfigPath(filepath.Join(home, ".config", "sqlrun"))
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return loadDotEnv()
}

// .env.local overrides .env
func loadDotEnv() error {
	if _, err := AppFs.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	if _, err := AppFs.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("failed to load .env.local: %w", err)
		}
	}
	return nil
}

// Load reads the current viper state into a validated Config.
func Load() (*Config, error) {
	dsn := viper.GetString("dsn")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		dsn = DefaultDSN
	}

	debounce, err := time.ParseDuration(viper.GetString("watch.debounce"))
	if err != nil {
		return nil, fmt.Errorf("invalid watch.debounce: %w", err)
	}

	cfg := &Config{
		Driver:        strings.ToLower(viper.GetString("driver")),
		DSN:           dsn,
		Splitter:      strings.ToLower(viper.GetString("splitter")),
		Strict:        viper.GetBool("strict"),
		LogLevel:      viper.GetString("log_level"),
		WatchDebounce: debounce,
	}

	switch cfg.Splitter {
	case SplitterPlain, SplitterQuoted:
	default:
		return nil, fmt.Errorf("unknown splitter %q (expected %s or %s)", cfg.Splitter, SplitterPlain, SplitterQuoted)
	}
	if cfg.Strict && cfg.Splitter == SplitterQuoted {
		return nil, fmt.Errorf("strict mode requires the %s splitter; the %s splitter executes unterminated statements", SplitterPlain, SplitterQuoted)
	}

	return cfg, nil
}
