package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var errorCmd = &cobra.Command{
	Use:   "error",
	Short: "Park a task with an error or clear it",
}

var errorSetCmd = &cobra.Command{
	Use:   "set <id> <message>",
	Short: "Mark a task as errored, releasing any claim",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		id, err := store.ResolveTaskID(ctx, args[0])
		if err != nil {
			return err
		}

		msg := strings.Join(args[1:], " ")
		if err := store.SetTaskError(ctx, id, msg); err != nil {
			return err
		}
		fmt.Printf("%s %s: %s\n", red("✗"), id, msg)
		return nil
	},
}

var errorClearCmd = &cobra.Command{
	Use:   "clear <id>",
	Short: "Clear a task's error so it can be claimed again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		id, err := store.ResolveTaskID(ctx, args[0])
		if err != nil {
			return err
		}

		if err := store.ClearTaskError(ctx, id); err != nil {
			return err
		}
		fmt.Printf("%s Cleared error on %s\n", green("✓"), id)
		return nil
	},
}

func init() {
	errorCmd.AddCommand(errorSetCmd, errorClearCmd)
	rootCmd.AddCommand(errorCmd)
}
