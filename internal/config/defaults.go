package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout: 60,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "~/.taskbot/taskbot.db",
		},
		Dispatcher: DispatcherConfig{
			Interval:  60 * time.Second,
			BatchSize: 100,
		},
		Reminders: RemindersConfig{
			Lead:   15 * time.Minute,
			Snooze: 60 * time.Minute,
		},
		Intake: IntakeConfig{
			DefaultTime: "18:00",
			Timezone:    "Local",
		},
		Workers: WorkersConfig{
			Count: 4,
			Queue: 64,
		},
		Web: WebConfig{
			Addr: "127.0.0.1:8080",
		},
		Calendar: CalendarConfig{
			TokenFile:  "~/.taskbot/calendar-token.json",
			CalendarID: "primary",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefault writes a commented default configuration to path.
func WriteDefault(path string) error {
	content := `# taskbot configuration
telegram:
  token: ""          # or TASKBOT_TELEGRAM_TOKEN
  poll_timeout: 60

database:
  driver: sqlite3    # sqlite3 or postgres
  dsn: ~/.taskbot/taskbot.db

dispatcher:
  interval: 60s
  batch_size: 100    # 0 = no cap

reminders:
  lead: 15m          # before the due time
  snooze: 60m

intake:
  default_time: "18:00"
  timezone: Local

workers:
  count: 4
  queue: 64

web:
  enabled: false
  addr: 127.0.0.1:8080

calendar:
  enabled: false
  credentials_file: ""
  token_file: ~/.taskbot/calendar-token.json
  calendar_id: primary

log:
  level: info        # debug, info, warn, error
  format: text       # text or json
`
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o600)
}
