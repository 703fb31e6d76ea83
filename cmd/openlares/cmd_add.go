package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/db"
)

var (
	addProject  string
	addQueue    string
	addPriority int
	addBody     string
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		p, err := resolveProject(ctx, projectRef(addProject))
		if err != nil {
			return err
		}

		in := db.TaskInput{
			ProjectID:   p.ID,
			Title:       strings.Join(args, " "),
			Description: addBody,
			Priority:    addPriority,
		}
		if addQueue != "" {
			q, err := resolveQueue(ctx, p.ID, addQueue)
			if err != nil {
				return err
			}
			in.QueueID = q.ID
		}

		t, err := store.CreateTask(ctx, in)
		if err != nil {
			return err
		}
		fmt.Printf("Created: %s  %q\n", t.ID, t.Title)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addProject, "project", "", "project name or ID (or OPENLARES_PROJECT env)")
	addCmd.Flags().StringVar(&addQueue, "queue", "", "queue name or ID (default: first queue)")
	addCmd.Flags().IntVar(&addPriority, "priority", 0, "priority, higher is more urgent")
	addCmd.Flags().StringVar(&addBody, "body", "", "task description")
	rootCmd.AddCommand(addCmd)
}
