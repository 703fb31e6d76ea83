package main

import (
	"testing"

	"github.com/spf13/cobra"
)

func findCommand(parent *cobra.Command, use string) *cobra.Command {
	for _, c := range parent.Commands() {
		if c.Use == use {
			return c
		}
	}
	return nil
}

func TestCommandsRegistered(t *testing.T) {
	uses := []string{
		"migrate", "up", "down", "config", "project", "queue", "transition",
		"add <title>", "edit <id>", "rm <id>...", "status", "show <id>",
		"history <id>", "comment <id> [text]", "move <id> <queue>",
		"claim <id>", "unclaim <id>", "error", "next", "prompt <id>",
		"reclaim", "tree", "board", "watch", "serve", "run",
	}
	for _, use := range uses {
		if findCommand(rootCmd, use) == nil {
			t.Errorf("expected %q command to be registered", use)
		}
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	tests := []struct {
		parent *cobra.Command
		uses   []string
	}{
		{configCmd, []string{"init", "show"}},
		{projectCmd, []string{"create <name>", "list", "show <project>", "update <project>",
			"delete <project>", "seed <name>", "apply <project> <template.yaml>"}},
		{queueCmd, []string{"add <name>", "list", "update <queue>", "delete <queue>", "reorder <queue>..."}},
		{transitionCmd, []string{"add <from> <to>", "list", "delete <id> | <from> <to>"}},
		{errorCmd, []string{"set <id> <message>", "clear <id>"}},
	}
	for _, tt := range tests {
		for _, use := range tt.uses {
			if findCommand(tt.parent, use) == nil {
				t.Errorf("expected %q under %q", use, tt.parent.Use)
			}
		}
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd   *cobra.Command
		flags []string
	}{
		{addCmd, []string{"project", "queue", "priority", "body"}},
		{editCmd, []string{"title", "body", "priority"}},
		{statusCmd, []string{"project", "queue", "json"}},
		{showCmd, []string{"json"}},
		{moveCmd, []string{"note", "as"}},
		{claimCmd, []string{"agent", "session"}},
		{commentCmd, []string{"as", "author", "list"}},
		{nextCmd, []string{"project", "agent", "json"}},
		{reclaimCmd, []string{"older-than"}},
		{treeCmd, []string{"project"}},
		{boardCmd, []string{"project", "width"}},
		{watchCmd, []string{"project", "interval"}},
		{serveCmd, []string{"metrics-addr", "agent-id", "project", "backend"}},
		{runCmd, []string{"once", "agent-id", "project", "backend"}},
		{projectSeedCmd, []string{"back-edges", "strict", "max-agents", "allow-agent"}},
		{projectDeleteCmd, []string{"yes"}},
		{queueAddCmd, []string{"owner", "description", "system-prompt", "limit", "position"}},
		{transitionAddCmd, []string{"actor", "auto"}},
		{configInitCmd, []string{"global", "force"}},
		{upCmd, []string{"wait"}},
	}
	for _, tt := range tests {
		for _, name := range tt.flags {
			if tt.cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected flag --%s on %s command", name, tt.cmd.Name())
			}
		}
	}
}

func TestPersistentProjectFlags(t *testing.T) {
	for _, c := range []*cobra.Command{queueCmd, transitionCmd} {
		if c.PersistentFlags().Lookup("project") == nil {
			t.Errorf("expected persistent --project flag on %s", c.Name())
		}
	}
}

func TestEditRequiresArg(t *testing.T) {
	rootCmd.SetArgs([]string{"edit"})
	err := rootCmd.Execute()
	if err == nil {
		t.Error("expected edit to fail without argument")
	}
}

func TestMoveRequiresQueue(t *testing.T) {
	rootCmd.SetArgs([]string{"move", "some-task"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected move to fail without a destination queue")
	}
}

func TestTruncateID(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"short-id", "short-id"},
		{"write-the-docs-3fa9c", "write-the-docs-3fa9c"},
		{"this-is-a-very-long-task-id-that-exceeds", "this-is-a-very-long-task"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := truncateID(tt.input); got != tt.want {
			t.Errorf("truncateID(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
