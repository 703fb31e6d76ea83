package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/board"
)

var (
	boardProject  string
	boardWidth    int
	watchInterval time.Duration
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Draw the project as kanban columns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		p, err := resolveProject(ctx, projectRef(boardProject))
		if err != nil {
			return err
		}

		snap, err := board.Load(ctx, store, p.ID)
		if err != nil {
			return err
		}
		fmt.Println(board.TitleStyle.Render(snap.Summary()))
		fmt.Println(board.Render(snap, boardWidth, -1))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live kanban view that refreshes as tasks move",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		p, err := resolveProject(ctx, projectRef(boardProject))
		if err != nil {
			return err
		}
		return board.Watch(ctx, store, p.ID, watchInterval)
	},
}

func init() {
	for _, c := range []*cobra.Command{boardCmd, watchCmd} {
		c.Flags().StringVar(&boardProject, "project", "", "project name or ID (or OPENLARES_PROJECT env)")
	}
	boardCmd.Flags().IntVar(&boardWidth, "width", 0, "total width in columns (default: fixed column width)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", board.DefaultRefreshInterval, "refresh interval")
	rootCmd.AddCommand(boardCmd, watchCmd)
}
