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
	projectStrict       bool
	projectMaxAgents    int
	projectAllowAgents  []string
	projectSystemPrompt string
	projectPinned       bool
	projectName         string
	projectBackEdges    bool
	projectDeleteYes    bool
	projectJSON         bool
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty project",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}

		in := db.ProjectInput{
			Name:   strings.Join(args, " "),
			Config: projectConfigFromFlags(db.ProjectConfig{}, cmd),
			Pinned: projectPinned,
		}
		if projectSystemPrompt != "" {
			in.SystemPrompt = &projectSystemPrompt
		}

		p, err := store.CreateProject(ctx, in)
		if err != nil {
			return err
		}
		fmt.Printf("Created project: %s  %q\n", p.ID, p.Name)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}

		projects, err := store.ListProjects(ctx)
		if err != nil {
			return err
		}

		if projectJSON {
			if projects == nil {
				projects = []*db.Project{}
			}
			return printJSON(projects)
		}

		if len(projects) == 0 {
			fmt.Println("No projects.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  \tNAME\tID\tMODE\tLAST OPENED\n")
		for _, p := range projects {
			pin := " "
			if p.Pinned {
				pin = "★"
			}
			mode := "free"
			if p.Config.StrictTransitions {
				mode = "strict"
			}
			last := "—"
			if p.LastAccessedAt != nil {
				last = p.LastAccessedAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", pin, p.Name, p.ID, mode, last)
		}
		return w.Flush()
	},
}

// ProjectOutput is the JSON structure for `openlares project show --json`.
type ProjectOutput struct {
	Project     *db.Project      `json:"project"`
	Queues      []*db.Queue      `json:"queues"`
	Transitions []*db.Transition `json:"transitions"`
}

var projectShowCmd = &cobra.Command{
	Use:   "show <project>",
	Short: "Print a project with its pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}

		p, err := resolveProject(ctx, args[0])
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

		if projectJSON {
			return printJSON(ProjectOutput{Project: p, Queues: queues, Transitions: transitions})
		}

		fmt.Printf("── Project: %s %s\n", p.Name, strings.Repeat("─", max(0, 60-len(p.Name))))
		fmt.Printf("ID:       %s\n", p.ID)
		if p.Config.StrictTransitions {
			fmt.Println("Mode:     strict (moves must follow transitions)")
		} else {
			fmt.Println("Mode:     free")
		}
		if p.Config.MaxConcurrentAgents > 0 {
			fmt.Printf("Agents:   at most %d at once\n", p.Config.MaxConcurrentAgents)
		}
		if len(p.Config.AllowedAgents) > 0 {
			fmt.Printf("Allowed:  %s\n", strings.Join(p.Config.AllowedAgents, ", "))
		}
		if p.SystemPrompt != nil {
			fmt.Println()
			fmt.Println("System prompt:")
			fmt.Println(*p.SystemPrompt)
		}
		fmt.Println()
		printPipeline(queues, transitions)
		return nil
	},
}

var projectUpdateCmd = &cobra.Command{
	Use:   "update <project>",
	Short: "Change a project's name, mode or prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}

		p, err := resolveProject(ctx, args[0])
		if err != nil {
			return err
		}

		var u db.ProjectUpdate
		flags := cmd.Flags()
		if flags.Changed("name") {
			u.Name = &projectName
		}
		if flags.Changed("strict") || flags.Changed("max-agents") || flags.Changed("allow-agent") {
			c := projectConfigFromFlags(p.Config, cmd)
			u.Config = &c
		}
		if flags.Changed("system-prompt") {
			u.SystemPrompt = &projectSystemPrompt
		}
		if flags.Changed("pinned") {
			u.Pinned = &projectPinned
		}

		updated, err := store.UpdateProject(ctx, p.ID, u)
		if err != nil {
			return err
		}
		fmt.Printf("%s Updated project %s\n", green("✓"), updated.Name)
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <project>",
	Short: "Delete a project with all its queues and tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}

		p, err := store.ResolveProject(ctx, args[0])
		if err != nil {
			return err
		}
		if !projectDeleteYes {
			return fmt.Errorf("deleting %q removes all of its tasks; pass --yes to confirm", p.Name)
		}
		if err := store.DeleteProject(ctx, p.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted project: %s\n", p.Name)
		return nil
	},
}

var projectSeedCmd = &cobra.Command{
	Use:   "seed <name>",
	Short: "Create a project with the Todo → In Progress → Done pipeline",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}

		p, err := store.SeedDefaults(ctx, strings.Join(args, " "), db.SeedOptions{
			BackEdges: projectBackEdges,
			Config:    projectConfigFromFlags(db.ProjectConfig{}, cmd),
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s Project ready: %s  %q\n", green("✓"), p.ID, p.Name)
		return nil
	},
}

var projectApplyCmd = &cobra.Command{
	Use:   "apply <project> <template.yaml>",
	Short: "Add the queues and transitions of a pipeline template",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := connectDB(ctx); err != nil {
			return err
		}

		p, err := resolveProject(ctx, args[0])
		if err != nil {
			return err
		}
		tmpl, err := db.LoadTemplate(args[1])
		if err != nil {
			return err
		}
		created, err := store.ApplyTemplate(ctx, p.ID, tmpl)
		if err != nil {
			return err
		}
		fmt.Printf("%s Applied %s: %d queue(s), %d transition(s)\n",
			green("✓"), args[1], len(created), len(tmpl.Transitions))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{projectCreateCmd, projectUpdateCmd, projectSeedCmd} {
		c.Flags().BoolVar(&projectStrict, "strict", false, "only allow moves along defined transitions")
		c.Flags().IntVar(&projectMaxAgents, "max-agents", 0, "maximum tasks claimed at once (0 = unlimited)")
		c.Flags().StringSliceVar(&projectAllowAgents, "allow-agent", nil, "agent allowed to execute tasks (repeatable)")
	}
	for _, c := range []*cobra.Command{projectCreateCmd, projectUpdateCmd} {
		c.Flags().StringVar(&projectSystemPrompt, "system-prompt", "", "prompt prepended to every task of the project")
		c.Flags().BoolVar(&projectPinned, "pinned", false, "list the project first")
	}
	projectUpdateCmd.Flags().StringVar(&projectName, "name", "", "new project name")
	projectSeedCmd.Flags().BoolVar(&projectBackEdges, "back-edges", false, "also create the return transitions")
	projectDeleteCmd.Flags().BoolVar(&projectDeleteYes, "yes", false, "confirm deletion")
	projectListCmd.Flags().BoolVar(&projectJSON, "json", false, "output as JSON")
	projectShowCmd.Flags().BoolVar(&projectJSON, "json", false, "output as JSON")

	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectShowCmd, projectUpdateCmd,
		projectDeleteCmd, projectSeedCmd, projectApplyCmd)
	rootCmd.AddCommand(projectCmd)
}

// projectConfigFromFlags overlays the flags the user set on base.
func projectConfigFromFlags(base db.ProjectConfig, cmd *cobra.Command) db.ProjectConfig {
	flags := cmd.Flags()
	if flags.Changed("strict") {
		base.StrictTransitions = projectStrict
	}
	if flags.Changed("max-agents") {
		base.MaxConcurrentAgents = projectMaxAgents
	}
	if flags.Changed("allow-agent") {
		base.AllowedAgents = projectAllowAgents
	}
	return base
}
