package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/spf13/cobra"

	"github.com/user/sqlagents/internal/journal"
)

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksListCmd, tasksEventsCmd, tasksClearCmd)
	tasksEventsCmd.Flags().Int("limit", 0, "show only the last N events")
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect the task journal",
}

func openJournal() (*journal.Journal, error) {
	j := newJournal(loadConfig())
	if j == nil {
		return nil, fmt.Errorf("task journal is disabled (journal.enabled = false)")
	}
	return j, nil
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journaled tasks, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal()
		if err != nil {
			return err
		}
		ctx := context.Background()

		ids, err := j.Tasks(ctx)
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println("No tasks found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TASK\tAGENT\tSTATE\tEVENTS\tUPDATED")
		for _, id := range ids {
			last, err := j.Tail(ctx, id, 1)
			if err != nil || len(last) == 0 {
				continue
			}
			count, err := j.Count(ctx, id)
			if err != nil {
				count = 0
			}
			e := last[0]
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				id,
				e.Agent,
				e.State,
				count,
				e.At.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var tasksEventsCmd = &cobra.Command{
	Use:   "events <task-id>",
	Short: "Show the events recorded for a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := j.Tail(context.Background(), a2a.TaskID(args[0]), limit)
		if err != nil {
			return fmt.Errorf("read task journal: %w", err)
		}
		if len(entries) == 0 {
			return fmt.Errorf("task not found: %s", args[0])
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tKIND\tSTATE\tAT\tTEXT")
		for _, e := range entries {
			text := e.Text
			if e.Kind == "artifact" {
				text = e.Artifact + ": " + text
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.Seq, e.Kind, e.State, e.At.Format("15:04:05.000"), text)
		}
		return w.Flush()
	},
}

var tasksClearCmd = &cobra.Command{
	Use:   "clear <task-id|all>",
	Short: "Delete a task's journal, or every journal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal()
		if err != nil {
			return err
		}
		ctx := context.Background()

		ids := []a2a.TaskID{a2a.TaskID(args[0])}
		if args[0] == "all" {
			if ids, err = j.Tasks(ctx); err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}
		}
		for _, id := range ids {
			if err := j.Remove(ctx, id); err != nil {
				return err
			}
		}
		fmt.Fprintf(os.Stdout, "Cleared %d task journal(s).\n", len(ids))
		return nil
	},
}
