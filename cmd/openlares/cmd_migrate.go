package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := connectDB(cmd.Context()); err != nil {
			return err
		}

		applied, err := store.RunMigrations(cmd.Context())
		if err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		if len(applied) == 0 {
			fmt.Println("Nothing to apply, all migrations are current.")
			return nil
		}

		for _, name := range applied {
			fmt.Printf("%s Applied: %s\n", green("✓"), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
