package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/db"
)

var (
	transitionProject string
	transitionActor   string
	transitionAuto    bool
	transitionJSON    bool
)

var transitionCmd = &cobra.Command{
	Use:   "transition",
	Short: "Manage the allowed moves between queues",
}

var transitionAddCmd = &cobra.Command{
	Use:   "add <from> <to>",
	Short: "Allow moves from one queue to another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		p, err := resolveProject(ctx, projectRef(transitionProject))
		if err != nil {
			return err
		}
		from, err := resolveQueue(ctx, p.ID, args[0])
		if err != nil {
			return err
		}
		to, err := resolveQueue(ctx, p.ID, args[1])
		if err != nil {
			return err
		}

		t, err := store.CreateTransition(ctx, db.TransitionInput{
			ProjectID:   p.ID,
			FromQueueID: from.ID,
			ToQueueID:   to.ID,
			ActorType:   db.ActorType(transitionActor),
			AutoTrigger: transitionAuto,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created transition: %s  %s → %s (%s)\n", t.ID, from.Name, to.Name, t.ActorType)
		return nil
	},
}

var transitionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the transitions of a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		p, err := resolveProject(ctx, projectRef(transitionProject))
		if err != nil {
			return err
		}

		transitions, err := store.ListTransitions(ctx, p.ID)
		if err != nil {
			return err
		}
		if transitionJSON {
			return printJSON(transitions)
		}
		if len(transitions) == 0 {
			fmt.Println("No transitions.")
			return nil
		}

		names, err := queueNames(cmd, p.ID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "FROM\tTO\tACTOR\tID\n")
		for _, t := range transitions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", names[t.FromQueueID], names[t.ToQueueID], t.ActorType, t.ID)
		}
		return w.Flush()
	},
}

var transitionDeleteCmd = &cobra.Command{
	Use:   "delete <id> | <from> <to>",
	Short: "Remove a transition by ID or by its queues",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}

		id := args[0]
		if len(args) == 2 {
			p, err := resolveProject(ctx, projectRef(transitionProject))
			if err != nil {
				return err
			}
			t, err := findTransition(cmd, p.ID, args[0], args[1])
			if err != nil {
				return err
			}
			id = t.ID
		}

		if err := store.DeleteTransition(ctx, id); err != nil {
			return err
		}
		fmt.Printf("Deleted transition: %s\n", id)
		return nil
	},
}

func init() {
	transitionCmd.PersistentFlags().StringVar(&transitionProject, "project", "", "project name or ID (or OPENLARES_PROJECT env)")
	transitionAddCmd.Flags().StringVar(&transitionActor, "actor", string(db.ActorBoth), "who may take it: human, assistant or both")
	transitionAddCmd.Flags().BoolVar(&transitionAuto, "auto", false, "mark as auto-triggered (reserved)")
	transitionListCmd.Flags().BoolVar(&transitionJSON, "json", false, "output as JSON")

	transitionCmd.AddCommand(transitionAddCmd, transitionListCmd, transitionDeleteCmd)
	rootCmd.AddCommand(transitionCmd)
}

func findTransition(cmd *cobra.Command, projectID, fromRef, toRef string) (*db.Transition, error) {
	ctx := cmd.Context()
	from, err := resolveQueue(ctx, projectID, fromRef)
	if err != nil {
		return nil, err
	}
	to, err := resolveQueue(ctx, projectID, toRef)
	if err != nil {
		return nil, err
	}
	out, err := store.ListTransitionsFrom(ctx, from.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range out {
		if t.ToQueueID == to.ID {
			return t, nil
		}
	}
	return nil, fmt.Errorf("transition %s → %s: %w", from.Name, to.Name, db.ErrNotFound)
}

// queueNames maps the queue IDs of a project to their names.
func queueNames(cmd *cobra.Command, projectID string) (map[string]string, error) {
	queues, err := store.ListQueues(cmd.Context(), projectID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(queues))
	for _, q := range queues {
		names[q.ID] = q.Name
	}
	return names, nil
}
