package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tcron/internal/app"
	"tcron/internal/core"
)

func newTaskCommand(c *app.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, inspect and run tasks",
	}
	cmd.AddCommand(
		newTaskListCommand(c),
		newTaskAddCommand(c),
		newTaskShowCommand(c),
		newTaskRunCommand(c),
		newTaskRemoveCommand(c),
		newTaskToggleCommand(c, "enable", true),
		newTaskToggleCommand(c, "disable", false),
		newTaskHistoryCommand(c),
	)
	return cmd
}

func newTaskListCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Type    string
		Enabled bool
		Query   string
	}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := core.TaskFilter{Query: opts.Query}
			if opts.Type != "" {
				t, err := core.ParseTaskType(strings.ToUpper(opts.Type))
				if err != nil {
					return err
				}
				filter.Type = &t
			}
			if cmd.Flags().Changed("enabled") {
				filter.Enabled = &opts.Enabled
			}

			tasks, err := c.Tasks.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No tasks found.")
				return nil
			}
			printTaskList(cmd.OutOrStdout(), tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "Only tasks of this type (shell, python, combined)")
	cmd.Flags().BoolVar(&opts.Enabled, "enabled", false, "Only enabled (true) or disabled (false) tasks")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "Substring of name or description")
	return cmd
}

func printTaskList(w io.Writer, tasks []core.Task) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	defer func() { _ = tw.Flush() }()

	_, _ = fmt.Fprintln(tw, "ID\tTYPE\tENABLED\tSCHEDULE\tRUNS\tNAME")
	for _, t := range tasks {
		schedule := "-"
		if t.Schedule != nil {
			schedule = string(t.Schedule.RepeatType)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%d/%d\t%s\n",
			t.ID, t.Type, t.IsEnabled, schedule, t.SuccessCount, t.ExecutionCount, t.Name)
	}
}

func newTaskAddCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Name        string
		Description string
		Type        string
		Script      string
		File        string
		Repeat      string
		At          string
		Interval    time.Duration
		Timeout     time.Duration
		OnBoot      bool
		Disabled    bool
	}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		Long: `Create a task from an inline script or a script file.

Examples:
  # Run a shell one-liner on demand
  tcron task add --name cleanup --script 'rm -rf /tmp/cache/*'

  # Run a Python file every day at 03:00 UTC
  tcron task add --name report --type python --file report.py --repeat daily --at 2025-01-01T03:00:00Z

  # Run every 90 minutes with a 5 minute budget
  tcron task add --name poll --script ./poll.sh --repeat custom --interval 90m --timeout 5m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			script := opts.Script
			if opts.File != "" {
				if script != "" {
					return errors.New("--script and --file are mutually exclusive")
				}
				data, err := os.ReadFile(opts.File)
				if err != nil {
					return fmt.Errorf("read script: %w", err)
				}
				script = string(data)
			}

			task := core.Task{
				Name:          opts.Name,
				Description:   opts.Description,
				Type:          core.TaskType(strings.ToUpper(opts.Type)),
				ScriptContent: script,
				IsEnabled:     !opts.Disabled,
			}
			if opts.Repeat != "" || opts.At != "" || opts.Timeout > 0 || opts.OnBoot {
				sched, err := scheduleFromFlags(opts.Repeat, opts.At, opts.Interval, opts.Timeout)
				if err != nil {
					return err
				}
				sched.ExecuteOnBoot = opts.OnBoot
				task.Schedule = &sched
			}

			id, err := c.Tasks.Insert(cmd.Context(), task)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created task %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Task name (required)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "Task description")
	cmd.Flags().StringVar(&opts.Type, "type", string(core.TaskTypeShell), "Script type: shell, python or combined")
	cmd.Flags().StringVar(&opts.Script, "script", "", "Inline script content")
	cmd.Flags().StringVar(&opts.File, "file", "", "Read the script from a file")
	cmd.Flags().StringVar(&opts.Repeat, "repeat", "", "Recurrence: none, daily, weekly, monthly or custom")
	cmd.Flags().StringVar(&opts.At, "at", "", "First run time, RFC3339 (default now)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "Repeat interval for custom schedules")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "Execution budget (default 30s)")
	cmd.Flags().BoolVar(&opts.OnBoot, "on-boot", false, "Also run when the host boots")
	cmd.Flags().BoolVar(&opts.Disabled, "disabled", false, "Create the task disabled")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func scheduleFromFlags(repeat, at string, interval, timeout time.Duration) (core.TaskSchedule, error) {
	if repeat == "" {
		repeat = string(core.RepeatNone)
	}
	repeatType, err := core.ParseRepeatType(strings.ToUpper(repeat))
	if err != nil {
		return core.TaskSchedule{}, err
	}
	start := time.Now().UTC().Truncate(time.Minute)
	if at != "" {
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return core.TaskSchedule{}, fmt.Errorf("--at must be RFC3339: %w", err)
		}
		start = parsed.UTC()
	}
	maxExec := core.DefaultMaxExecutionTime
	if timeout > 0 {
		maxExec = timeout.Milliseconds()
	}
	return core.TaskSchedule{
		ScheduledTime:    start,
		RepeatType:       repeatType,
		RepeatInterval:   interval.Milliseconds(),
		IsOneTime:        repeatType == core.RepeatNone,
		MaxExecutionTime: maxExec,
	}, nil
}

func newTaskShowCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its statistics and next runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			task, err := c.Tasks.Get(ctx, args[0])
			if err != nil {
				return err
			}
			status, err := c.Tasks.Status(ctx, task.ID)
			if err != nil {
				return err
			}
			next, err := c.Tasks.NextRuns(ctx, task.ID, 3)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "ID:          %s\n", task.ID)
			_, _ = fmt.Fprintf(w, "Name:        %s\n", task.Name)
			if task.Description != "" {
				_, _ = fmt.Fprintf(w, "Description: %s\n", task.Description)
			}
			_, _ = fmt.Fprintf(w, "Type:        %s\n", task.Type)
			_, _ = fmt.Fprintf(w, "Enabled:     %t\n", task.IsEnabled)
			_, _ = fmt.Fprintf(w, "Status:      %s\n", status)
			_, _ = fmt.Fprintf(w, "Timeout:     %s\n", task.MaxExecutionTime())
			_, _ = fmt.Fprintf(w, "Runs:        %d (%d ok, %d failed, avg %dms)\n",
				task.ExecutionCount, task.SuccessCount, task.FailureCount, task.AverageExecutionTime)
			for i, t := range next {
				label := ""
				if i == 0 {
					label = "Next:"
				}
				_, _ = fmt.Fprintf(w, "%-12s %s\n", label, t.Format(time.RFC3339))
			}
			_, _ = fmt.Fprintf(w, "\n%s\n", strings.TrimRight(task.ScriptContent, "\n"))
			return nil
		},
	}
}

func newTaskRunCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Run a task now and print its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := c.Tasks.Execute(cmd.Context(), args[0])
			if err != nil && res.ID == "" {
				return err
			}
			_, _ = io.WriteString(cmd.OutOrStdout(), res.Output)
			_, _ = io.WriteString(cmd.ErrOrStderr(), res.ErrorOutput)
			if err != nil {
				return err
			}
			if !res.IsSuccess {
				return fmt.Errorf("task %s finished %s (exit code %d)", args[0], res.Status, res.ExitCode)
			}
			return nil
		},
	}
}

func newTaskRemoveCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"delete"},
		Short:   "Delete tasks and their history",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := c.Tasks.Delete(cmd.Context(), id); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", id)
			}
			return nil
		},
	}
}

func newTaskToggleCommand(c *app.Container, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.Tasks.ToggleEnabled(cmd.Context(), args[0], enabled); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s %sd\n", args[0], verb)
			return nil
		},
	}
}

func newTaskHistoryCommand(c *app.Container) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "List past executions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := c.Tasks.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if limit > 0 && len(history) > limit {
				history = history[:limit]
			}
			if len(history) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No executions recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			defer func() { _ = tw.Flush() }()
			_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tSTARTED\tDURATION\tEXIT")
			for _, r := range history {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\t%d\n",
					r.ID, r.Status, r.StartTime.Format(time.RFC3339), r.ExecutionTime, r.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of executions to show")
	return cmd
}
