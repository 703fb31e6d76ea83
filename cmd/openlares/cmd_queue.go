package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/db"
)

var (
	queueProject      string
	queueOwner        string
	queueDescription  string
	queueSystemPrompt string
	queuePosition     int
	queueLimit        int
	queueName         string
	queueJSON         bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the queues of a project",
}

var queueAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a queue to a project",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		p, err := resolveProject(ctx, projectRef(queueProject))
		if err != nil {
			return err
		}

		in := db.QueueInput{
			ProjectID:  p.ID,
			Name:       strings.Join(args, " "),
			OwnerType:  db.OwnerType(queueOwner),
			AgentLimit: queueLimit,
		}
		if queueDescription != "" {
			in.Description = &queueDescription
		}
		if queueSystemPrompt != "" {
			in.SystemPrompt = &queueSystemPrompt
		}
		if cmd.Flags().Changed("position") {
			in.Position = &queuePosition
		}

		q, err := store.CreateQueue(ctx, in)
		if err != nil {
			return err
		}
		fmt.Printf("Created queue: %s  %q (%s, position %d)\n", q.ID, q.Name, q.OwnerType, q.Position)
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the queues of a project in pipeline order",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		p, err := resolveProject(ctx, projectRef(queueProject))
		if err != nil {
			return err
		}

		queues, err := store.ListQueues(ctx, p.ID)
		if err != nil {
			return err
		}
		if queueJSON {
			return printJSON(queues)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "POS\tNAME\tOWNER\tLIMIT\tID\n")
		for _, q := range queues {
			limit := "—"
			if q.AgentLimit > 0 {
				limit = fmt.Sprint(q.AgentLimit)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", q.Position, q.Name, q.OwnerType, limit, q.ID)
		}
		return w.Flush()
	},
}

var queueUpdateCmd = &cobra.Command{
	Use:   "update <queue>",
	Short: "Change a queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		p, err := resolveProject(ctx, projectRef(queueProject))
		if err != nil {
			return err
		}
		q, err := resolveQueue(ctx, p.ID, args[0])
		if err != nil {
			return err
		}

		var u db.QueueUpdate
		flags := cmd.Flags()
		if flags.Changed("name") {
			u.Name = &queueName
		}
		if flags.Changed("owner") {
			owner := db.OwnerType(queueOwner)
			u.OwnerType = &owner
		}
		if flags.Changed("description") {
			u.Description = &queueDescription
		}
		if flags.Changed("system-prompt") {
			u.SystemPrompt = &queueSystemPrompt
		}
		if flags.Changed("limit") {
			u.AgentLimit = &queueLimit
		}

		updated, err := store.UpdateQueue(ctx, q.ID, u)
		if err != nil {
			return err
		}
		fmt.Printf("%s Updated queue %s\n", green("✓"), updated.Name)
		return nil
	},
}

var queueDeleteCmd = &cobra.Command{
	Use:   "delete <queue>",
	Short: "Delete an empty queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		p, err := resolveProject(ctx, projectRef(queueProject))
		if err != nil {
			return err
		}
		q, err := resolveQueue(ctx, p.ID, args[0])
		if err != nil {
			return err
		}

		if err := store.DeleteQueue(ctx, q.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted queue: %s\n", q.Name)
		return nil
	},
}

var queueReorderCmd = &cobra.Command{
	Use:   "reorder <queue>...",
	Short: "Set the pipeline order of queues, first to last",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		p, err := resolveProject(ctx, projectRef(queueProject))
		if err != nil {
			return err
		}

		positions := make([]db.QueuePosition, 0, len(args))
		for i, ref := range args {
			q, err := resolveQueue(ctx, p.ID, ref)
			if err != nil {
				return err
			}
			positions = append(positions, db.QueuePosition{QueueID: q.ID, Position: i})
		}

		if err := store.UpdateQueuePositions(ctx, p.ID, positions); err != nil {
			return err
		}
		fmt.Printf("%s Reordered %d queue(s)\n", green("✓"), len(positions))
		return nil
	},
}

func init() {
	queueCmd.PersistentFlags().StringVar(&queueProject, "project", "", "project name or ID (or OPENLARES_PROJECT env)")

	for _, c := range []*cobra.Command{queueAddCmd, queueUpdateCmd} {
		c.Flags().StringVar(&queueOwner, "owner", string(db.OwnerHuman), "who works the queue: human or assistant")
		c.Flags().StringVar(&queueDescription, "description", "", "queue description shown to the agent")
		c.Flags().StringVar(&queueSystemPrompt, "system-prompt", "", "prompt for tasks in this queue")
		c.Flags().IntVar(&queueLimit, "limit", 0, "maximum claimed tasks in the queue (0 = unlimited)")
	}
	queueAddCmd.Flags().IntVar(&queuePosition, "position", 0, "pipeline position (default: last)")
	queueUpdateCmd.Flags().StringVar(&queueName, "name", "", "new queue name")
	queueListCmd.Flags().BoolVar(&queueJSON, "json", false, "output as JSON")

	queueCmd.AddCommand(queueAddCmd, queueListCmd, queueUpdateCmd, queueDeleteCmd, queueReorderCmd)
	rootCmd.AddCommand(queueCmd)
}
