package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/executor"
)

var (
	claimAgent   string
	claimSession string
)

var claimCmd = &cobra.Command{
	Use:   "claim <id>",
	Short: "Claim a task for an agent",
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

		agentID := claimAgent
		if agentID == "" {
			agentID = cfg.Executor.AgentID
		}
		session := claimSession
		if session == "" {
			session = executor.SessionKey(id)
		}

		t, err := store.ClaimTask(ctx, id, agentID, session)
		if err != nil {
			return err
		}
		fmt.Printf("Claimed: %s by %s (session %s)\n", t.ID, agentID, session)
		return nil
	},
}

var unclaimCmd = &cobra.Command{
	Use:   "unclaim <id>",
	Short: "Release a claimed task without moving it",
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

		if err := store.ReleaseTask(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Unclaimed: %s\n", id)
		return nil
	},
}

func init() {
	claimCmd.Flags().StringVar(&claimAgent, "agent", "", "agent ID (default: executor.agent_id)")
	claimCmd.Flags().StringVar(&claimSession, "session", "", "session key (default: derived from the task)")
	rootCmd.AddCommand(claimCmd, unclaimCmd)
}
