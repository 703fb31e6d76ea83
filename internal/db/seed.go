package db

import (
	"context"
	"errors"
	"fmt"
)

// Default pipeline queue names.
const (
	QueueTodo       = "Todo"
	QueueInProgress = "In Progress"
	QueueDone       = "Done"
)

// SeedOptions tunes SeedDefaults.
type SeedOptions struct {
	// BackEdges adds In Progress→Todo, Done→In Progress and Done→Todo.
	BackEdges bool
	Config    ProjectConfig
}

// DefaultTemplate is the Todo → In Progress → Done pipeline.
func DefaultTemplate(backEdges bool) PipelineTemplate {
	t := PipelineTemplate{
		Queues: []TemplateQueue{
			{Name: QueueTodo, Owner: OwnerHuman},
			{Name: QueueInProgress, Owner: OwnerAssistant},
			{Name: QueueDone, Owner: OwnerHuman},
		},
		Transitions: []TemplateTransition{
			{From: QueueTodo, To: QueueInProgress, Actor: ActorHuman},
			{From: QueueInProgress, To: QueueDone, Actor: ActorAssistant},
		},
	}
	if backEdges {
		t.Transitions = append(t.Transitions,
			TemplateTransition{From: QueueInProgress, To: QueueTodo, Actor: ActorBoth},
			TemplateTransition{From: QueueDone, To: QueueInProgress, Actor: ActorHuman},
			TemplateTransition{From: QueueDone, To: QueueTodo, Actor: ActorHuman},
		)
	}
	return t
}

// SeedDefaults creates a project with the default pipeline. If a project with
// that name already exists it is returned unchanged. The project and its
// pipeline are committed together.
func (s *Store) SeedDefaults(ctx context.Context, name string, opts SeedOptions) (*Project, error) {
	return s.seed(ctx, name, opts.Config, DefaultTemplate(opts.BackEdges))
}

func (s *Store) seed(ctx context.Context, name string, cfg ProjectConfig, t PipelineTemplate) (*Project, error) {
	existing, err := s.GetProjectByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var p *Project
	err = s.withTx(ctx, "seed", func(c conn) error {
		var err error
		if p, err = s.createProject(ctx, c, ProjectInput{Name: name, Config: cfg}); err != nil {
			return err
		}
		if _, err := s.applyTemplate(ctx, c, p.ID, t); err != nil {
			return fmt.Errorf("seeding pipeline: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrConflict) && p == nil {
		// Another seeder committed the project first.
		return s.GetProjectByName(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("seeding project: %w", err)
	}
	return p, nil
}
