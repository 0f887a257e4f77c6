package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/amirbrooks/taskbot/internal/domain"
	"github.com/amirbrooks/taskbot/internal/store"
)

const stampLayout = "2006-01-02 15:04"

func addCmd(gf *GlobalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Create a task from free text",
		Example: `  taskbot add "Созвониться с Иваном завтра в 15:00 #работа"
  taskbot add "Купить молоко сегодня #дом"`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, gf, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.owner(ctx, gf)
			if err != nil {
				return err
			}
			created, err := a.tasks.Submit(ctx, user.ID, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				payload := map[string]any{"task": created.Task}
				if created.Project != nil {
					payload["project"] = created.Project
				}
				if created.Reminder != nil {
					payload["reminder"] = created.Reminder
				}
				return writeJSON(out, payload)
			}
			fmt.Fprintf(out, "Created %s: %s\n", created.Task.ID, created.Task.Title)
			if created.Project != nil {
				fmt.Fprintf(out, "  project:  %s\n", created.Project.Name)
			}
			if created.Task.DueAt != nil {
				fmt.Fprintf(out, "  due:      %s\n", created.Task.DueAt.In(a.loc).Format(stampLayout))
			}
			if created.Reminder != nil {
				fmt.Fprintf(out, "  reminder: %s\n", created.Reminder.ScheduledAt.In(a.loc).Format(stampLayout))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the created task as JSON")
	return cmd
}

func parseCmd(gf *GlobalFlags) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "Show how a message would be interpreted, without saving",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, loc, err := loadConfig(gf, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			resolver, err := newResolver(cfg, loc)
			if err != nil {
				return err
			}
			now := time.Now().In(loc)
			if at != "" {
				now, err = time.ParseInLocation(stampLayout, at, loc)
				if err != nil {
					return usagef("--now must look like %q", stampLayout)
				}
			}

			p := resolver.Parse(strings.Join(args, " "), now)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "title: %s\n", p.Title)
			fmt.Fprintf(out, "tags:  %s\n", strings.Join(p.Tags, ", "))
			if p.DueAt != nil {
				fmt.Fprintf(out, "due:   %s\n", p.DueAt.In(loc).Format(stampLayout))
			} else {
				fmt.Fprintln(out, "due:   -")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "now", "", "reference time (YYYY-MM-DD HH:MM)")
	return cmd
}

func lsCmd(gf *GlobalFlags) *cobra.Command {
	var (
		project string
		status  string
		all     bool
		limit   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List tasks",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, gf, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.owner(ctx, gf)
			if err != nil {
				return err
			}
			filter := store.TaskFilter{OwnerID: user.ID, Open: !all, Limit: limit}
			if status != "" {
				st, ok := domain.ParseStatus(status)
				if !ok {
					return usagef("unknown status %q", status)
				}
				filter.Status, filter.Open = st, false
			}

			projects, err := a.tasks.Projects(ctx, user.ID)
			if err != nil {
				return err
			}
			names := make(map[string]string, len(projects))
			for _, p := range projects {
				names[p.ID] = p.Name
				if project != "" && strings.EqualFold(p.Name, project) {
					filter.ProjectID = p.ID
				}
			}
			if project != "" && filter.ProjectID == "" {
				return fmt.Errorf("project %q: %w", project, store.ErrNotFound)
			}

			tasks, err := a.tasks.Tasks(ctx, filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]any{"tasks": tasks})
			}

			w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tST\tDUE\tPROJECT\tTITLE")
			for _, t := range tasks {
				due := "-"
				if t.DueAt != nil {
					due = t.DueAt.In(a.loc).Format(stampLayout)
				}
				proj := names[t.ProjectID]
				if proj == "" {
					proj = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, statusAbbrev(t.Status), due, proj, t.Title)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "only tasks of this project")
	cmd.Flags().StringVarP(&status, "status", "s", "", "only tasks with this status (todo|in_progress|done|cancelled)")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include done and cancelled tasks")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of tasks")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func statusAbbrev(s domain.TaskStatus) string {
	switch s {
	case domain.StatusInProgress:
		return "DO"
	case domain.StatusDone:
		return "OK"
	case domain.StatusCancelled:
		return "XX"
	default:
		return "TD"
	}
}

func statusCmd(gf *GlobalFlags, name string, status domain.TaskStatus) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id-or-prefix>",
		Short: fmt.Sprintf("Mark a task %s", status),
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, gf, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.owner(ctx, gf)
			if err != nil {
				return err
			}
			task, err := a.tasks.Resolve(ctx, user.ID, args[0])
			if err != nil {
				return err
			}
			task, err = a.tasks.UpdateTaskStatus(ctx, task.ID, status)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", task.ID, task.Status, task.Title)
			return nil
		},
	}
}

func rmCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id-or-prefix>",
		Short: "Delete a task and its reminders",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, gf, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.owner(ctx, gf)
			if err != nil {
				return err
			}
			task, err := a.tasks.Resolve(ctx, user.ID, args[0])
			if err != nil {
				return err
			}
			if err := a.tasks.Delete(ctx, task.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s: %s\n", task.ID, task.Title)
			return nil
		},
	}
}

func projectsCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects with task counts",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, gf, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.owner(ctx, gf)
			if err != nil {
				return err
			}
			projects, err := a.tasks.Projects(ctx, user.ID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTASKS\tNAME")
			for _, p := range projects {
				fmt.Fprintf(w, "%s\t%d\t%s\n", p.ID, p.TaskCount, p.Name)
			}
			return w.Flush()
		},
	}
}

func exportCmd(gf *GlobalFlags) *cobra.Command {
	var (
		dir string
		all bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write tasks as markdown files with YAML frontmatter",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(dir) == "" {
				return usagef("--dir is required")
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, gf, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.owner(ctx, gf)
			if err != nil {
				return err
			}
			paths, err := a.store.ExportMarkdown(ctx, dir, store.TaskFilter{OwnerID: user.ID, Open: !all})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d task(s) to %s\n", len(paths), dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "output directory")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include done and cancelled tasks")
	return cmd
}
