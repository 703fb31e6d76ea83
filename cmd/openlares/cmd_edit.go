package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/db"
)

var (
	editTitle    string
	editBody     string
	editPriority int
)

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change a task; without flags, open its description in $EDITOR",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		task, err := resolveTask(ctx, args[0])
		if err != nil {
			return err
		}

		var u db.TaskUpdate
		flags := cmd.Flags()
		if flags.Changed("title") {
			u.Title = &editTitle
		}
		if flags.Changed("body") {
			u.Description = &editBody
		}
		if flags.Changed("priority") {
			u.Priority = &editPriority
		}

		if u == (db.TaskUpdate{}) {
			body, err := editInEditor(task.Description)
			if err != nil {
				return err
			}
			if body == task.Description {
				fmt.Println("No changes.")
				return nil
			}
			u.Description = &body
		}

		if _, err := store.UpdateTask(ctx, task.ID, u); err != nil {
			return err
		}
		fmt.Printf("%s Updated %s\n", green("✓"), task.ID)
		return nil
	},
}

func init() {
	editCmd.Flags().StringVar(&editTitle, "title", "", "new title")
	editCmd.Flags().StringVar(&editBody, "body", "", "new description")
	editCmd.Flags().IntVar(&editPriority, "priority", 0, "new priority")
	rootCmd.AddCommand(editCmd)
}

// editInEditor lets the user edit text in $EDITOR, falling back to vi.
func editInEditor(text string) (string, error) {
	tmp, err := os.CreateTemp("", "openlares-edit-*.md")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	tmp.Close()

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	c := exec.Command(editor, tmpPath)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("editor failed: %w", err)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return "", fmt.Errorf("reading temp file: %w", err)
	}
	return string(data), nil
}
