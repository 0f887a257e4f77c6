package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "TASKBOT"

var ErrInvalid = errors.New("invalid config")

// Load reads the configuration. An explicit path must exist; otherwise
// ./taskbot.yaml and then ~/.taskbot/config.yaml are tried, and defaults are
// used when neither exists. TASKBOT_* environment variables override files,
// e.g. TASKBOT_TELEGRAM_TOKEN for telegram.token.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		for _, candidate := range []string{ProjectConfigPath(), GlobalConfigPath()} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.Calendar.CredentialsFile = ExpandHome(cfg.Calendar.CredentialsFile)
	cfg.Calendar.TokenFile = ExpandHome(cfg.Calendar.TokenFile)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	v := viper.New()
	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v.Unmarshal(cfg)
}

// setDefaults registers every key so environment overrides apply even when
// the key is absent from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("telegram.token", cfg.Telegram.Token)
	v.SetDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	v.SetDefault("telegram.debug", cfg.Telegram.Debug)
	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.dsn", cfg.Database.DSN)
	v.SetDefault("dispatcher.interval", cfg.Dispatcher.Interval)
	v.SetDefault("dispatcher.batch_size", cfg.Dispatcher.BatchSize)
	v.SetDefault("reminders.lead", cfg.Reminders.Lead)
	v.SetDefault("reminders.snooze", cfg.Reminders.Snooze)
	v.SetDefault("intake.default_time", cfg.Intake.DefaultTime)
	v.SetDefault("intake.timezone", cfg.Intake.Timezone)
	v.SetDefault("workers.count", cfg.Workers.Count)
	v.SetDefault("workers.queue", cfg.Workers.Queue)
	v.SetDefault("web.enabled", cfg.Web.Enabled)
	v.SetDefault("web.addr", cfg.Web.Addr)
	v.SetDefault("calendar.enabled", cfg.Calendar.Enabled)
	v.SetDefault("calendar.credentials_file", cfg.Calendar.CredentialsFile)
	v.SetDefault("calendar.token_file", cfg.Calendar.TokenFile)
	v.SetDefault("calendar.calendar_id", cfg.Calendar.CalendarID)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		add("database.driver must be sqlite3 or postgres, got %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		add("database.dsn is required")
	}
	if c.Dispatcher.Interval <= 0 {
		add("dispatcher.interval must be positive")
	}
	if c.Dispatcher.BatchSize < 0 {
		add("dispatcher.batch_size must not be negative")
	}
	if c.Reminders.Lead <= 0 {
		add("reminders.lead must be positive")
	}
	if c.Reminders.Snooze <= 0 {
		add("reminders.snooze must be positive")
	}
	if _, _, err := c.DefaultClock(); err != nil {
		add("%v", err)
	}
	if _, err := c.Location(); err != nil {
		add("%v", err)
	}
	if c.Workers.Count < 1 {
		add("workers.count must be at least 1")
	}
	if c.Workers.Queue < 1 {
		add("workers.queue must be at least 1")
	}
	if c.Telegram.PollTimeout < 0 {
		add("telegram.poll_timeout must not be negative")
	}
	if c.Web.Enabled && strings.TrimSpace(c.Web.Addr) == "" {
		add("web.addr is required when web is enabled")
	}
	if c.Calendar.Enabled {
		if strings.TrimSpace(c.Calendar.CredentialsFile) == "" {
			add("calendar.credentials_file is required when calendar is enabled")
		}
		if strings.TrimSpace(c.Calendar.CalendarID) == "" {
			add("calendar.calendar_id is required when calendar is enabled")
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// DefaultClock parses intake.default_time.
func (c *Config) DefaultClock() (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(c.Intake.DefaultTime), ":")
	if ok {
		hour, err1 := strconv.Atoi(h)
		minute, err2 := strconv.Atoi(m)
		if err1 == nil && err2 == nil && hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59 && len(m) == 2 {
			return hour, minute, nil
		}
	}
	return 0, 0, fmt.Errorf("intake.default_time must be HH:MM, got %q", c.Intake.DefaultTime)
}

// Location resolves intake.timezone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Intake.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("intake.timezone: %w", err)
	}
	return loc, nil
}

// GlobalConfigPath returns the path to the per-user config file
func GlobalConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".taskbot", "config.yaml")
}

// ProjectConfigPath returns the path to the config file in the working directory
func ProjectConfigPath() string {
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, "taskbot.yaml")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return path
}
