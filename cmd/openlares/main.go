package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/openlares/openlares-sub000/internal/config"
	"github.com/openlares/openlares-sub000/internal/db"
)

var (
	dbURL      string
	configPath string
	cfg        *config.Config
	store      *db.Store
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:           "openlares",
	Short:         "Kanban pipelines worked by humans and an AI agent",
	Long:          "openlares moves tasks through per-project queue pipelines. Humans work some queues; an executor dispatches tasks in agent-owned queues to an AI agent and routes them by its reply.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "database URL (overrides DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/openlares/config.yaml + ./openlares.yaml)")
}

// loadConfig reads the layered configuration once.
func loadConfig() (*config.Config, error) {
	if cfg != nil {
		return cfg, nil
	}

	loader := config.NewLoader()
	if dbURL != "" {
		loader.SetOverride("database.url", dbURL)
	}

	var err error
	if configPath != "" {
		cfg, err = loader.LoadFromPath(configPath)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// connectDB opens the store. Call from subcommands that need DB access.
func connectDB(ctx context.Context, opts ...db.Option) error {
	if store != nil {
		return nil
	}
	c, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL not set (use --db flag or .env)")
	}

	store, err = db.Connect(ctx, c.Database.URL, opts...)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	return nil
}

// projectRef returns the --project flag value or OPENLARES_PROJECT.
func projectRef(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv("OPENLARES_PROJECT")
}

// resolveProject looks up a project by id or name.
func resolveProject(ctx context.Context, ref string) (*db.Project, error) {
	if ref == "" {
		return nil, fmt.Errorf("--project is required (or set OPENLARES_PROJECT)")
	}
	p, err := store.ResolveProject(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := store.TouchProject(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// resolveQueue looks up a queue of the project by id or name.
func resolveQueue(ctx context.Context, projectID, ref string) (*db.Queue, error) {
	q, err := store.GetQueue(ctx, ref)
	if err == nil && q.ProjectID == projectID {
		return q, nil
	}
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	return store.FindQueueByName(ctx, projectID, ref)
}

// resolveTask accepts a full task id or a unique prefix.
func resolveTask(ctx context.Context, ref string) (*db.Task, error) {
	id, err := store.ResolveTaskID(ctx, ref)
	if err != nil {
		return nil, err
	}
	return store.GetTask(ctx, id)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// explain turns business-rule failures into short messages.
func explain(err error) string {
	switch {
	case errors.Is(err, db.ErrInvalidTransition):
		return "move refused: no transition allows it (" + err.Error() + ")"
	case errors.Is(err, db.ErrNotClaimable):
		return "task cannot be claimed: " + err.Error()
	case errors.Is(err, db.ErrConstraint):
		return "refused: " + err.Error()
	default:
		return err.Error()
	}
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if store != nil {
		store.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, red("error:"), explain(err))
		os.Exit(1)
	}
}
