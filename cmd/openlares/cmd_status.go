package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/board"
	"github.com/openlares/openlares-sub000/internal/db"
)

var (
	statusProject string
	statusQueue   string
	statusJSON    bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Table view of a project's tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		p, err := resolveProject(ctx, projectRef(statusProject))
		if err != nil {
			return err
		}

		filter := db.TaskFilter{ProjectID: p.ID}
		if statusQueue != "" {
			q, err := resolveQueue(ctx, p.ID, statusQueue)
			if err != nil {
				return err
			}
			filter.QueueID = q.ID
		}

		tasks, err := store.ListTasks(ctx, filter)
		if err != nil {
			return err
		}

		if statusJSON {
			if tasks == nil {
				tasks = []*db.Task{}
			}
			return printJSON(tasks)
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks.")
			return nil
		}

		names, err := queueNames(cmd, p.ID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  \tID\tTITLE\tQUEUE\tPRI\tCLAIMED BY\tERROR\n")
		for _, t := range tasks {
			claimedBy := "—"
			if t.AssignedAgent != nil {
				claimedBy = *t.AssignedAgent
			}
			errMsg := "—"
			if t.Error != nil {
				errMsg = red(truncate(*t.Error, 40))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				statusSymbol(t), truncateID(t.ID), t.Title, names[t.QueueID], t.Priority, claimedBy, errMsg)
		}
		return w.Flush()
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusProject, "project", "", "project name or ID (or OPENLARES_PROJECT env)")
	statusCmd.Flags().StringVar(&statusQueue, "queue", "", "only tasks in this queue")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)
}

// statusSymbol returns the colored status symbol of a task.
func statusSymbol(t *db.Task) string {
	sym := board.TaskSymbol(t)
	switch {
	case t.Errored():
		return red(sym)
	case t.Claimed():
		return yellow(sym)
	default:
		return sym
	}
}

func truncateID(id string) string {
	if len(id) > 24 {
		return id[:24]
	}
	return id
}

func truncate(s string, n int) string {
	return board.Truncate(s, n)
}
