package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"github.com/amirbrooks/taskbot/internal/bot"
	"github.com/amirbrooks/taskbot/internal/reminder"
	"github.com/amirbrooks/taskbot/internal/web"
	"github.com/amirbrooks/taskbot/internal/workerpool"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(gf *GlobalFlags) *cobra.Command {
	var noWeb bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot, the reminder dispatcher and the dashboard API",
		Long: `Run the bot.

The Telegram token comes from telegram.token or TASKBOT_TELEGRAM_TOKEN.
The dashboard API listens on web.addr when web.enabled is set.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, gf, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			cfg, logger := a.cfg, a.logger

			if strings.TrimSpace(cfg.Telegram.Token) == "" {
				return usagef("telegram.token is required to serve")
			}
			api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
			if err != nil {
				return fmt.Errorf("telegram: %w", err)
			}
			api.Debug = cfg.Telegram.Debug
			logger.Info("authorized on telegram", "bot", api.Self.UserName)

			notifier := bot.NewNotifier(api)
			dispatcher, err := reminder.NewDispatcher(a.store, notifier, reminder.DispatcherConfig{
				Interval:  cfg.Dispatcher.Interval,
				BatchSize: cfg.Dispatcher.BatchSize,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			responder, err := reminder.NewResponder(a.tasks, a.store, notifier, reminder.ResponderConfig{
				Snooze: cfg.Reminders.Snooze,
				Logger: logger,
			})
			if err != nil {
				return err
			}

			pool := workerpool.New(cfg.Workers.Queue, logger)
			pool.Start(cfg.Workers.Count)

			b, err := bot.New(api, a.tasks, responder, pool, bot.Options{
				PollTimeout: cfg.Telegram.PollTimeout,
				Location:    a.loc,
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			if err := dispatcher.Start(ctx); err != nil {
				return err
			}

			errc := make(chan error, 2)
			var srv *web.Server
			if cfg.Web.Enabled && !noWeb {
				srv = web.NewServer(a.tasks, cfg.Web.Addr, logger)
				go func() {
					if err := srv.Start(); err != nil {
						errc <- fmt.Errorf("dashboard: %w", err)
					}
				}()
			}
			go func() { errc <- b.Run(ctx) }()

			var runErr error
			select {
			case <-ctx.Done():
			case runErr = <-errc:
			}
			stop()
			logger.Info("shutting down")

			dispatcher.Stop()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			var errs []error
			if srv != nil {
				errs = append(errs, srv.Shutdown(shutdownCtx))
			}
			errs = append(errs, pool.Shutdown(shutdownCtx))
			if err := errors.Join(errs...); err != nil {
				logger.Warn("shutdown incomplete", "err", err)
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&noWeb, "no-web", false, "do not start the dashboard API")
	return cmd
}
