package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	nextProject string
	nextAgent   string
	nextJSON    bool
)

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the task the executor would claim next",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		p, err := resolveProject(ctx, projectRef(nextProject))
		if err != nil {
			return err
		}

		agentID := nextAgent
		if agentID == "" {
			agentID = cfg.Executor.AgentID
		}
		t, err := store.GetNextClaimableTask(ctx, p.ID, agentID)
		if err != nil {
			return err
		}

		if nextJSON {
			return printJSON(t)
		}
		if t == nil {
			fmt.Println("No claimable task.")
			return nil
		}
		fmt.Printf("%s  %s  (priority %d)\n", truncateID(t.ID), t.Title, t.Priority)
		return nil
	},
}

func init() {
	nextCmd.Flags().StringVar(&nextProject, "project", "", "project name or ID (or OPENLARES_PROJECT env)")
	nextCmd.Flags().StringVar(&nextAgent, "agent", "", "agent ID (default: executor.agent_id)")
	nextCmd.Flags().BoolVar(&nextJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(nextCmd)
}
