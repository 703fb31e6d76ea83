package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/db"
)

var (
	moveNote string
	moveAs   string
)

var moveCmd = &cobra.Command{
	Use:   "move <id> <queue>",
	Short: "Move a task to another queue",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		task, err := resolveTask(ctx, args[0])
		if err != nil {
			return err
		}
		to, err := resolveQueue(ctx, task.ProjectID, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}

		moved, err := store.MoveTask(ctx, task.ID, to.ID, db.ActorType(moveAs), moveNote)
		if err != nil {
			return err
		}
		fmt.Printf("Moved: %s → %s\n", moved.ID, to.Name)
		return nil
	},
}

func init() {
	moveCmd.Flags().StringVar(&moveNote, "note", "", "note recorded in the history")
	moveCmd.Flags().StringVar(&moveAs, "as", string(db.ActorHuman), "acting as: human or assistant")
	rootCmd.AddCommand(moveCmd)
}
