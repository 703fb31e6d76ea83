package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/executor"
)

var promptCmd = &cobra.Command{
	Use:   "prompt <id>",
	Short: "Print the message the executor would send for a task",
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

		msg, err := executor.Prompt(ctx, store, task)
		if err != nil {
			return fmt.Errorf("building prompt: %w", err)
		}
		fmt.Println(msg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promptCmd)
}
