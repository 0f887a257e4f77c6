package config

import "time"

// Config is the full taskbot configuration.
type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram" mapstructure:"telegram"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Dispatcher DispatcherConfig `yaml:"dispatcher" mapstructure:"dispatcher"`
	Reminders  RemindersConfig  `yaml:"reminders" mapstructure:"reminders"`
	Intake     IntakeConfig     `yaml:"intake" mapstructure:"intake"`
	Workers    WorkersConfig    `yaml:"workers" mapstructure:"workers"`
	Web        WebConfig        `yaml:"web" mapstructure:"web"`
	Calendar   CalendarConfig   `yaml:"calendar" mapstructure:"calendar"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

type TelegramConfig struct {
	Token string `yaml:"token" mapstructure:"token"`
	// PollTimeout is the long-polling timeout in seconds.
	PollTimeout int  `yaml:"poll_timeout" mapstructure:"poll_timeout"`
	Debug       bool `yaml:"debug" mapstructure:"debug"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // sqlite3|postgres
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

type DispatcherConfig struct {
	Interval  time.Duration `yaml:"interval" mapstructure:"interval"`
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"` // 0 = unbounded
}

type RemindersConfig struct {
	Lead   time.Duration `yaml:"lead" mapstructure:"lead"`
	Snooze time.Duration `yaml:"snooze" mapstructure:"snooze"`
}

type IntakeConfig struct {
	DefaultTime string `yaml:"default_time" mapstructure:"default_time"` // HH:MM
	Timezone    string `yaml:"timezone" mapstructure:"timezone"`         // IANA name or Local
}

type WorkersConfig struct {
	Count int `yaml:"count" mapstructure:"count"`
	Queue int `yaml:"queue" mapstructure:"queue"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"`
}

type CalendarConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	TokenFile       string `yaml:"token_file" mapstructure:"token_file"`
	CalendarID      string `yaml:"calendar_id" mapstructure:"calendar_id"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug|info|warn|error
	Format string `yaml:"format" mapstructure:"format"` // text|json
}
