package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Delete tasks with their history and comments",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}

		for _, ref := range args {
			id, err := store.ResolveTaskID(ctx, ref)
			if err != nil {
				return err
			}
			if err := store.DeleteTask(ctx, id); err != nil {
				return err
			}
			fmt.Printf("Deleted: %s\n", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
