package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/db"
)

var (
	commentAs     string
	commentAuthor string
	commentList   bool
)

var commentCmd = &cobra.Command{
	Use:   "comment <id> [text]",
	Short: "Add to a task's conversation, or list it with --list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		task, err := resolveTask(ctx, args[0])
		if err != nil {
			return err
		}

		if commentList {
			comments, err := store.ListComments(ctx, task.ID)
			if err != nil {
				return err
			}
			if len(comments) == 0 {
				fmt.Println("No comments.")
			}
			for _, c := range comments {
				printComment(c)
			}
			return nil
		}

		if len(args) < 2 {
			return fmt.Errorf("comment text is required")
		}
		author := commentAuthor
		if author == "" {
			author = os.Getenv("USER")
		}
		c, err := store.AddComment(ctx, db.CommentInput{
			TaskID:     task.ID,
			AuthorType: db.AuthorType(commentAs),
			Author:     author,
			Content:    strings.Join(args[1:], " "),
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s Commented on %s\n", green("✓"), c.TaskID)
		return nil
	},
}

func init() {
	commentCmd.Flags().StringVar(&commentAs, "as", string(db.AuthorHuman), "author type: human or agent")
	commentCmd.Flags().StringVar(&commentAuthor, "author", "", "author name (default: $USER)")
	commentCmd.Flags().BoolVar(&commentList, "list", false, "print the conversation instead")
	rootCmd.AddCommand(commentCmd)
}
