package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/amirbrooks/taskbot/internal/config"
	"github.com/amirbrooks/taskbot/internal/domain"
	"github.com/amirbrooks/taskbot/internal/service"
	"github.com/amirbrooks/taskbot/internal/store"
)

// Exit codes
const (
	ExitOK       = 0
	ExitUsage    = 2
	ExitNotFound = 3
	ExitConflict = 4
	ExitInternal = 10
)

var Version = "dev"

// localUser is the external id used for tasks added from the terminal when
// --user is not given.
const localUser = "cli"

type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

// GlobalFlags are the persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	User       string
	Verbose    bool
}

func Run(args []string) int {
	return run(context.Background(), args, os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	fmt.Fprintln(stderr, "Error:", err)
	return exitCode(err)
}

func newRootCmd() *cobra.Command {
	gf := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "taskbot",
		Short: "Personal task tracker with a Telegram front end",
		Long: `taskbot turns short messages like "Купить молоко завтра #дом" into tasks
with a project, a due time and a reminder, and nudges you on Telegram when
the reminder comes due.`,
		Version:       Version,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.PersistentFlags().StringVarP(&gf.ConfigPath, "config", "c", "", "config file (default ./taskbot.yaml or ~/.taskbot/config.yaml)")
	root.PersistentFlags().StringVarP(&gf.User, "user", "u", localUser, "external user id to act as (your Telegram user id)")
	root.PersistentFlags().BoolVarP(&gf.Verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		serveCmd(gf),
		addCmd(gf),
		parseCmd(gf),
		lsCmd(gf),
		statusCmd(gf, "done", domain.StatusDone),
		statusCmd(gf, "start", domain.StatusInProgress),
		statusCmd(gf, "cancel", domain.StatusCancelled),
		rmCmd(gf),
		projectsCmd(gf),
		sweepCmd(gf),
		exportCmd(gf),
		initConfigCmd(),
		calendarAuthCmd(gf),
	)
	return root
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

var errExists = errors.New("already exists")

func exitCode(err error) int {
	var ue usageError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &ue),
		errors.Is(err, config.ErrInvalid),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, store.ErrInvalid):
		return ExitUsage
	case errors.Is(err, store.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, errExists):
		return ExitConflict
	default:
		return ExitInternal
	}
}

func writeJSON(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
