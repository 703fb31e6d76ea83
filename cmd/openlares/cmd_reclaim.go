package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/executor"
)

var reclaimOlderThan time.Duration

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Error out claims held longer than the execution timeout",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}

		olderThan := reclaimOlderThan
		if olderThan <= 0 {
			olderThan = cfg.Executor.ExecutionTimeoutDuration()
		}

		count, err := store.ExpireStaleClaims(ctx, olderThan, executor.TimeoutMessage(olderThan))
		if err != nil {
			return err
		}

		if count == 0 {
			fmt.Println("No stale claims.")
		} else {
			fmt.Printf("Expired %d stale claim(s).\n", count)
		}
		return nil
	},
}

func init() {
	reclaimCmd.Flags().DurationVar(&reclaimOlderThan, "older-than", 0, "stale threshold (default: executor.execution_timeout)")
	rootCmd.AddCommand(reclaimCmd)
}
