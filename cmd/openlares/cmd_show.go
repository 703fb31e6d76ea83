package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/db"
)

// ShowOutput is the JSON structure for `openlares show --json`.
type ShowOutput struct {
	Task     *db.Task          `json:"task"`
	Comments []*db.TaskComment `json:"comments"`
	History  []*db.TaskHistory `json:"history"`
}

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a task with its conversation and move history",
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
		comments, err := store.ListComments(ctx, task.ID)
		if err != nil {
			return err
		}
		history, err := store.GetTaskHistory(ctx, task.ID)
		if err != nil {
			return err
		}

		if showJSON {
			if comments == nil {
				comments = []*db.TaskComment{}
			}
			if history == nil {
				history = []*db.TaskHistory{}
			}
			return printJSON(ShowOutput{Task: task, Comments: comments, History: history})
		}

		names, err := queueNames(cmd, task.ProjectID)
		if err != nil {
			return err
		}

		fmt.Printf("── Task: %s %s\n", task.ID, strings.Repeat("─", max(0, 60-len(task.ID))))
		fmt.Printf("Title:    %s\n", task.Title)
		fmt.Printf("Queue:    %s %s\n", statusSymbol(task), names[task.QueueID])
		fmt.Printf("Priority: %d\n", task.Priority)
		if task.AssignedAgent != nil {
			fmt.Printf("Claimed by: %s", *task.AssignedAgent)
			if task.ClaimedAt != nil {
				fmt.Printf(" (since %s)", task.ClaimedAt.Local().Format("15:04:05"))
			}
			fmt.Println()
		}
		if task.Error != nil {
			fmt.Printf("Error:    %s\n", red(*task.Error))
		}

		if task.Description != "" {
			fmt.Println()
			fmt.Println("Description:")
			fmt.Println(task.Description)
		}

		if len(comments) > 0 {
			fmt.Printf("\n── Conversation %s\n", strings.Repeat("─", 55))
			for _, c := range comments {
				printComment(c)
			}
		}

		if len(history) > 0 {
			fmt.Printf("\n── History %s\n", strings.Repeat("─", 60))
			for _, h := range history {
				printHistory(h, names)
			}
		}
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(showCmd)
}

func printComment(c *db.TaskComment) {
	ts := c.CreatedAt.Local().Format("15:04:05")
	who := string(c.AuthorType)
	if c.Author != nil {
		who += ":" + *c.Author
	}
	fmt.Printf("[%s] %s\n", ts, who)
	for _, line := range strings.Split(c.Content, "\n") {
		fmt.Printf("  %s\n", line)
	}
	fmt.Println()
}

func printHistory(h *db.TaskHistory, names map[string]string) {
	from := "∅"
	if h.FromQueueID != nil {
		from = names[*h.FromQueueID]
	}
	line := fmt.Sprintf("[%s] %s → %s  (%s)", h.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		from, names[h.ToQueueID], h.Actor)
	if h.Note != nil {
		line += "  " + faint(*h.Note)
	}
	fmt.Println(line)
}
