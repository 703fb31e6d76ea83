package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/db"
)

var treeProject string

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the pipeline with tasks and outgoing transitions per queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}
		p, err := resolveProject(ctx, projectRef(treeProject))
		if err != nil {
			return err
		}

		queues, err := store.ListQueues(ctx, p.ID)
		if err != nil {
			return err
		}
		transitions, err := store.ListTransitions(ctx, p.ID)
		if err != nil {
			return err
		}
		tasks, err := store.ListTasks(ctx, db.TaskFilter{ProjectID: p.ID})
		if err != nil {
			return err
		}

		for _, root := range pipelineTree(queues, transitions, tasks) {
			printTreeNode(root, "", true)
		}
		return nil
	},
}

func init() {
	treeCmd.Flags().StringVar(&treeProject, "project", "", "project name or ID (or OPENLARES_PROJECT env)")
	rootCmd.AddCommand(treeCmd)
}

// treeNode is one printable line with nested lines under it.
type treeNode struct {
	label    string
	children []*treeNode
}

// pipelineTree builds one root per queue, holding its tasks and then its
// outgoing transitions. Tasks may be nil.
func pipelineTree(queues []*db.Queue, transitions []*db.Transition, tasks []*db.Task) []*treeNode {
	names := make(map[string]string, len(queues))
	for _, q := range queues {
		names[q.ID] = q.Name
	}

	roots := make([]*treeNode, 0, len(queues))
	for _, q := range queues {
		node := &treeNode{label: fmt.Sprintf("◆ %s  (%s)", q.Name, q.OwnerType)}
		for _, t := range tasks {
			if t.QueueID == q.ID {
				node.children = append(node.children, &treeNode{
					label: fmt.Sprintf("%s  %s  %s", statusSymbol(t), truncateID(t.ID), t.Title),
				})
			}
		}
		for _, tr := range transitions {
			if tr.FromQueueID == q.ID {
				node.children = append(node.children, &treeNode{
					label: fmt.Sprintf("→ %s  [%s]", names[tr.ToQueueID], tr.ActorType),
				})
			}
		}
		roots = append(roots, node)
	}
	return roots
}

// printPipeline prints the queues and transitions of a project.
func printPipeline(queues []*db.Queue, transitions []*db.Transition) {
	for _, root := range pipelineTree(queues, transitions, nil) {
		printTreeNode(root, "", true)
	}
}

func printTreeNode(node *treeNode, prefix string, isLast bool) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}
	if prefix == "" {
		fmt.Printf("  %s\n", node.label)
	} else {
		fmt.Printf("%s%s%s\n", prefix, connector, node.label)
	}

	childPrefix := prefix
	if prefix == "" {
		childPrefix = "  "
	} else if isLast {
		childPrefix = prefix + "    "
	} else {
		childPrefix = prefix + "│   "
	}

	for i, child := range node.children {
		printTreeNode(child, childPrefix, i == len(node.children)-1)
	}
}
