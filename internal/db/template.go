package db

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PipelineTemplate describes a set of queues and the edges between them.
//
//	queues:
//	  - name: Todo
//	    owner: human
//	  - name: Review
//	    owner: assistant
//	    agent_limit: 1
//	    system_prompt: You review pull requests.
//	transitions:
//	  - from: Todo
//	    to: Review
//	    actor: human
type PipelineTemplate struct {
	Queues      []TemplateQueue      `yaml:"queues"`
	Transitions []TemplateTransition `yaml:"transitions"`
}

// TemplateQueue is one queue of a template.
type TemplateQueue struct {
	Name         string    `yaml:"name"`
	Owner        OwnerType `yaml:"owner"`
	Description  string    `yaml:"description,omitempty"`
	SystemPrompt string    `yaml:"system_prompt,omitempty"`
	AgentLimit   int       `yaml:"agent_limit,omitempty"`
}

// TemplateTransition is one edge of a template, by queue name.
type TemplateTransition struct {
	From  string    `yaml:"from"`
	To    string    `yaml:"to"`
	Actor ActorType `yaml:"actor"`
}

// ParseTemplate decodes a YAML pipeline template and validates it.
func ParseTemplate(data []byte) (PipelineTemplate, error) {
	var t PipelineTemplate
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parsing pipeline template: %w", err)
	}
	return t, t.Validate()
}

// LoadTemplate reads and parses a template file.
func LoadTemplate(path string) (PipelineTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PipelineTemplate{}, fmt.Errorf("reading pipeline template: %w", err)
	}
	return ParseTemplate(data)
}

// Validate checks names, owner and actor types, and edge endpoints.
func (t PipelineTemplate) Validate() error {
	if len(t.Queues) == 0 {
		return invalid("template defines no queues")
	}
	names := make(map[string]bool, len(t.Queues))
	for _, q := range t.Queues {
		key := strings.ToLower(strings.TrimSpace(q.Name))
		if key == "" {
			return invalid("template queue without a name")
		}
		if names[key] {
			return invalid("template queue %q defined twice", q.Name)
		}
		names[key] = true
		if q.Owner != "" && !q.Owner.Valid() {
			return invalid("template queue %q has unknown owner %q", q.Name, q.Owner)
		}
		if q.AgentLimit < 0 {
			return invalid("template queue %q has a negative agent limit", q.Name)
		}
	}
	for _, tr := range t.Transitions {
		if !names[strings.ToLower(strings.TrimSpace(tr.From))] {
			return invalid("transition from unknown queue %q", tr.From)
		}
		if !names[strings.ToLower(strings.TrimSpace(tr.To))] {
			return invalid("transition to unknown queue %q", tr.To)
		}
		if tr.Actor != "" && !tr.Actor.Valid() {
			return invalid("transition %s → %s has unknown actor %q", tr.From, tr.To, tr.Actor)
		}
	}
	return nil
}

// ApplyTemplate appends the template's queues after the project's existing
// ones and creates its transitions, all in one transaction.
func (s *Store) ApplyTemplate(ctx context.Context, projectID string, t PipelineTemplate) ([]*Queue, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var created []*Queue
	err := s.withTx(ctx, "template", func(c conn) error {
		var err error
		created, err = s.applyTemplate(ctx, c, projectID, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// applyTemplate creates the queues and transitions of a validated template.
func (s *Store) applyTemplate(ctx context.Context, c conn, projectID string, t PipelineTemplate) ([]*Queue, error) {
	created := make([]*Queue, 0, len(t.Queues))
	byName := make(map[string]*Queue, len(t.Queues))
	for _, tq := range t.Queues {
		q, err := s.createQueue(ctx, c, QueueInput{
			ProjectID:    projectID,
			Name:         tq.Name,
			OwnerType:    tq.Owner,
			Description:  strPtr(tq.Description),
			SystemPrompt: strPtr(tq.SystemPrompt),
			AgentLimit:   tq.AgentLimit,
		})
		if err != nil {
			return nil, err
		}
		byName[strings.ToLower(q.Name)] = q
		created = append(created, q)
	}
	for _, tr := range t.Transitions {
		from := byName[strings.ToLower(strings.TrimSpace(tr.From))]
		to := byName[strings.ToLower(strings.TrimSpace(tr.To))]
		if _, err := s.createTransition(ctx, c, TransitionInput{
			ProjectID:   projectID,
			FromQueueID: from.ID,
			ToQueueID:   to.ID,
			ActorType:   tr.Actor,
		}); err != nil {
			return nil, err
		}
	}
	return created, nil
}
