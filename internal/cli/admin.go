package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"github.com/amirbrooks/taskbot/internal/bot"
	"github.com/amirbrooks/taskbot/internal/calendar"
	"github.com/amirbrooks/taskbot/internal/config"
	"github.com/amirbrooks/taskbot/internal/reminder"
)

func sweepCmd(gf *GlobalFlags) *cobra.Command {
	var toStdout bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Deliver due reminders once and exit",
		Long: `Deliver every due, unsent reminder once.

Reminders go to Telegram. With --print they are written to stdout instead
and still count as delivered.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, gf, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			var notifier reminder.Notifier
			if toStdout {
				notifier = &printNotifier{w: cmd.OutOrStdout()}
			} else {
				if strings.TrimSpace(a.cfg.Telegram.Token) == "" {
					return usagef("telegram.token is required; use --print to write reminders to stdout")
				}
				api, err := tgbotapi.NewBotAPI(a.cfg.Telegram.Token)
				if err != nil {
					return fmt.Errorf("telegram: %w", err)
				}
				notifier = bot.NewNotifier(api)
			}

			d, err := reminder.NewDispatcher(a.store, notifier, reminder.DispatcherConfig{
				Interval:  a.cfg.Dispatcher.Interval,
				BatchSize: a.cfg.Dispatcher.BatchSize,
				Logger:    a.logger,
			})
			if err != nil {
				return err
			}
			report, err := d.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "sweep %s: found=%d delivered=%d failed=%d\n",
				report.ID, report.Found, report.Delivered, report.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&toStdout, "print", false, "write reminders to stdout instead of Telegram")
	return cmd
}

// printNotifier writes reminders to a terminal. There is nothing to press,
// so it renders the button labels only.
type printNotifier struct {
	w    io.Writer
	next int
}

func (p *printNotifier) Deliver(_ context.Context, address, text string, actions [][]reminder.Action) (reminder.MessageRef, error) {
	var labels []string
	for _, row := range actions {
		for _, a := range row {
			labels = append(labels, "["+a.Label+"]")
		}
	}
	if _, err := fmt.Fprintf(p.w, "%s → %s  %s\n", address, text, strings.Join(labels, " ")); err != nil {
		return reminder.MessageRef{}, err
	}
	p.next++
	return reminder.MessageRef{Address: address, MessageID: p.next}, nil
}

func (p *printNotifier) DisableActions(context.Context, reminder.MessageRef) error {
	return nil
}

func initConfigCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a default config file",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.GlobalConfigPath()
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s: %w (use --force to overwrite)", path, errExists)
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Wrote config to:", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func calendarAuthCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "calendar-auth",
		Short: "Authorize access to Google Calendar",
		Long: `Authorize taskbot to write events to Google Calendar.

Open the printed URL, grant access and paste the code back. The token is
saved to calendar.token_file.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := loadConfig(gf, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Calendar.CredentialsFile) == "" {
				return usagef("calendar.credentials_file is required")
			}
			oauthCfg, err := calendar.OAuthConfig(cfg.Calendar.CredentialsFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Open this URL and authorize access:\n%s\n\nCode: ", calendar.AuthURL(oauthCfg))
			code, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && strings.TrimSpace(code) == "" {
				return usagef("no authorization code given")
			}
			if err := calendar.ExchangeAndSave(cmd.Context(), oauthCfg, strings.TrimSpace(code), cfg.Calendar.TokenFile); err != nil {
				return err
			}
			fmt.Fprintln(out, "Saved token to:", cfg.Calendar.TokenFile)
			return nil
		},
	}
}
