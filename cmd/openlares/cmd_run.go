package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/events"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the executor in the foreground",
	Long:  "Run the executor in the foreground. With --once, claim at most one task, wait for it to be routed and exit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		applyExecutorFlags(cmd)
		if err := connectDB(ctx); err != nil {
			return err
		}

		ex, err := newExecutor(ctx, cfg, events.Discard, nil)
		if err != nil {
			return err
		}

		if runOnce {
			if err := ex.Tick(ctx); err != nil {
				return err
			}
			st := ex.Status()
			if st.TaskID == "" {
				fmt.Println("No claimable task.")
				return nil
			}
			fmt.Printf("Dispatched: %s\n", st.TaskID)
			if err := ex.Wait(ctx); err != nil {
				return err
			}
			return printOutcome(ctx, st.TaskID)
		}

		if err := ex.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		log.Println("run: shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return ex.Stop(sctx)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "dispatch at most one task, then exit")
	rootCmd.AddCommand(runCmd)
}

// printOutcome reports where a dispatched task ended up.
func printOutcome(ctx context.Context, taskID string) error {
	t, err := store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	q, err := store.GetQueue(ctx, t.QueueID)
	if err != nil {
		return err
	}
	switch {
	case t.Errored():
		fmt.Printf("%s %s errored in %s: %s\n", red("✗"), t.ID, q.Name, *t.Error)
	case t.Claimed():
		fmt.Printf("%s %s still claimed in %s\n", yellow("●"), t.ID, q.Name)
	default:
		fmt.Printf("%s %s is now in %s\n", green("✓"), t.ID, q.Name)
	}
	return nil
}
