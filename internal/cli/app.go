package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/amirbrooks/taskbot/internal/calendar"
	"github.com/amirbrooks/taskbot/internal/config"
	"github.com/amirbrooks/taskbot/internal/domain"
	"github.com/amirbrooks/taskbot/internal/intake"
	"github.com/amirbrooks/taskbot/internal/logging"
	"github.com/amirbrooks/taskbot/internal/reminder"
	"github.com/amirbrooks/taskbot/internal/service"
	"github.com/amirbrooks/taskbot/internal/store"
)

// app is the wired object graph shared by the commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	loc    *time.Location
	store  *store.Store
	tasks  *service.TaskService
}

func loadConfig(gf *GlobalFlags, stderr io.Writer) (*config.Config, *slog.Logger, *time.Location, error) {
	cfg, err := config.Load(gf.ConfigPath)
	if err != nil {
		return nil, nil, nil, err
	}
	level := cfg.Log.Level
	if gf.Verbose {
		level = "debug"
	}
	logger := logging.New(stderr, level, cfg.Log.Format)
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, loc, nil
}

func newResolver(cfg *config.Config, loc *time.Location) (*intake.Resolver, error) {
	hour, minute, err := cfg.DefaultClock()
	if err != nil {
		return nil, err
	}
	return intake.NewResolver(intake.Options{Location: loc, DefaultHour: hour, DefaultMinute: minute}), nil
}

// openApp loads config and opens the store. The calendar mirror is attached
// only when withCalendar is set and the calendar is enabled.
func openApp(ctx context.Context, gf *GlobalFlags, stderr io.Writer, withCalendar bool) (*app, error) {
	cfg, logger, loc, err := loadConfig(gf, stderr)
	if err != nil {
		return nil, err
	}
	resolver, err := newResolver(cfg, loc)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	pipeline, err := intake.NewPipeline(st, resolver, cfg.Reminders.Lead)
	if err != nil {
		st.Close()
		return nil, err
	}
	scheduler, err := reminder.NewScheduler(st, cfg.Reminders.Lead)
	if err != nil {
		st.Close()
		return nil, err
	}

	opts := service.Options{Location: loc, Logger: logger}
	if withCalendar && cfg.Calendar.Enabled {
		api, err := calendar.NewGoogleAPI(ctx, cfg.Calendar.CredentialsFile, cfg.Calendar.TokenFile)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("calendar: %w", err)
		}
		mirror, err := calendar.New(api, cfg.Calendar.CalendarID, loc, cfg.Reminders.Lead)
		if err != nil {
			st.Close()
			return nil, err
		}
		opts.Calendar = mirror
	}

	tasks, err := service.New(st, pipeline, scheduler, opts)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, loc: loc, store: st, tasks: tasks}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// owner registers the acting user. Private Telegram chats share the user's
// id, so the external id doubles as the delivery address.
func (a *app) owner(ctx context.Context, gf *GlobalFlags) (domain.User, error) {
	return a.tasks.RegisterUser(ctx, gf.User, "", "")
}
