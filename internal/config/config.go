// Package config loads runtime settings from an optional YAML file with
// MOONCOVE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/sandeepkv93/mooncove/internal/puzzle"
	"github.com/sandeepkv93/mooncove/internal/report"
)

const EnvPrefix = "MOONCOVE"

var ErrInvalidConfig = errors.New("config: invalid value")

type Driver string

const (
	DriverMemory Driver = "memory"
	DriverSQLite Driver = "sqlite"
	DriverRedis  Driver = "redis"
)

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Channel  string `mapstructure:"channel" yaml:"channel"`
}

type BackendConfig struct {
	Driver     Driver      `mapstructure:"driver" yaml:"driver"`
	SQLitePath string      `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	Redis      RedisConfig `mapstructure:"redis" yaml:"redis"`
}

type BlobConfig struct {
	Root    string `mapstructure:"root" yaml:"root"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

type FocusConfig struct {
	WorkMinutes  int `mapstructure:"work_minutes" yaml:"work_minutes"`
	BreakMinutes int `mapstructure:"break_minutes" yaml:"break_minutes"`
}

type PuzzleConfig struct {
	RevealOn string `mapstructure:"reveal_on" yaml:"reveal_on"`
	// Seed fixes the piece order when non-zero.
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

type ReportConfig struct {
	Slots    int    `mapstructure:"slots" yaml:"slots"`
	Collapse string `mapstructure:"collapse" yaml:"collapse"`
}

type APIConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type Config struct {
	Backend         BackendConfig `mapstructure:"backend" yaml:"backend"`
	Blob            BlobConfig    `mapstructure:"blob" yaml:"blob"`
	Log             LogConfig     `mapstructure:"log" yaml:"log"`
	Focus           FocusConfig   `mapstructure:"focus" yaml:"focus"`
	Puzzle          PuzzleConfig  `mapstructure:"puzzle" yaml:"puzzle"`
	Report          ReportConfig  `mapstructure:"report" yaml:"report"`
	API             APIConfig     `mapstructure:"api" yaml:"api"`
	StatePath       string        `mapstructure:"state_path" yaml:"state_path"`
	SchedulerBuffer int           `mapstructure:"scheduler_buffer" yaml:"scheduler_buffer"`
}

// Dir is where mooncove keeps its files, ~/.config/mooncove by default.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mooncove"
	}
	return filepath.Join(home, ".config", "mooncove")
}

func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	dir := Dir()
	v.SetDefault("backend.driver", string(DriverSQLite))
	v.SetDefault("backend.sqlite_path", filepath.Join(dir, "mooncove.db"))
	v.SetDefault("backend.redis.addr", "localhost:6379")
	v.SetDefault("backend.redis.password", "")
	v.SetDefault("backend.redis.db", 0)
	v.SetDefault("backend.redis.channel", "mooncove:changes")
	v.SetDefault("blob.root", filepath.Join(dir, "blobs"))
	v.SetDefault("blob.base_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(dir, "logs", "mooncove.log"))
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("focus.work_minutes", 25)
	v.SetDefault("focus.break_minutes", 5)
	v.SetDefault("puzzle.reveal_on", string(puzzle.RevealOnCompletion))
	v.SetDefault("puzzle.seed", 0)
	v.SetDefault("report.slots", report.DefaultSlots)
	v.SetDefault("report.collapse", string(report.CollapseAverage))
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("state_path", filepath.Join(dir, "timer.json"))
	v.SetDefault("scheduler_buffer", 64)
}

// Default returns the built-in configuration without reading any file or
// the environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Load reads path when it exists, then applies environment overrides such
// as MOONCOVE_BACKEND_DRIVER. An empty path skips the file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Backend.Driver {
	case DriverMemory, DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("%w: backend.driver %q", ErrInvalidConfig, c.Backend.Driver)
	}
	if c.Backend.Driver == DriverSQLite && strings.TrimSpace(c.Backend.SQLitePath) == "" {
		return fmt.Errorf("%w: backend.sqlite_path is empty", ErrInvalidConfig)
	}
	if c.Backend.Driver == DriverRedis && strings.TrimSpace(c.Backend.Redis.Addr) == "" {
		return fmt.Errorf("%w: backend.redis.addr is empty", ErrInvalidConfig)
	}
	if c.Focus.WorkMinutes <= 0 || c.Focus.BreakMinutes <= 0 {
		return fmt.Errorf("%w: focus minutes must be positive", ErrInvalidConfig)
	}
	if c.Report.Slots <= 0 {
		return fmt.Errorf("%w: report.slots must be positive", ErrInvalidConfig)
	}
	if c.SchedulerBuffer <= 0 {
		return fmt.Errorf("%w: scheduler_buffer must be positive", ErrInvalidConfig)
	}
	if _, err := report.ParseCollapse(c.Report.Collapse); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := puzzle.ParseTrigger(c.Puzzle.RevealOn); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) Collapse() report.Collapse {
	collapse, _ := report.ParseCollapse(c.Report.Collapse)
	return collapse
}

func (c Config) Trigger() puzzle.Trigger {
	trigger, _ := puzzle.ParseTrigger(c.Puzzle.RevealOn)
	return trigger
}
