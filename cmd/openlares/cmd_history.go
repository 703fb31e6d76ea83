package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/db"
)

var historyJSON bool

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Print the moves of a task, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		task, err := resolveTask(ctx, args[0])
		if err != nil {
			return err
		}
		history, err := store.GetTaskHistory(ctx, task.ID)
		if err != nil {
			return err
		}

		if historyJSON {
			if history == nil {
				history = []*db.TaskHistory{}
			}
			return printJSON(history)
		}
		if len(history) == 0 {
			fmt.Println("No moves yet.")
			return nil
		}

		names, err := queueNames(cmd, task.ProjectID)
		if err != nil {
			return err
		}
		for _, h := range history {
			printHistory(h, names)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(historyCmd)
}
