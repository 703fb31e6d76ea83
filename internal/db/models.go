package db

import (
	"encoding/json"
	"slices"
	"time"
)

// OwnerType says who works the tasks sitting in a queue.
type OwnerType string

const (
	OwnerHuman     OwnerType = "human"
	OwnerAssistant OwnerType = "assistant"
)

// Valid reports whether o is a known owner type.
func (o OwnerType) Valid() bool {
	return o == OwnerHuman || o == OwnerAssistant
}

// ActorType says who may take a transition, and who performed a move.
type ActorType string

const (
	ActorHuman     ActorType = "human"
	ActorAssistant ActorType = "assistant"
	ActorBoth      ActorType = "both"
)

// Valid reports whether a is a known actor type.
func (a ActorType) Valid() bool {
	return a == ActorHuman || a == ActorAssistant || a == ActorBoth
}

// Allows reports whether a transition labelled a may be taken by actor.
func (a ActorType) Allows(actor ActorType) bool {
	return a == ActorBoth || a == actor
}

// AuthorType distinguishes human and agent comments.
type AuthorType string

const (
	AuthorHuman AuthorType = "human"
	AuthorAgent AuthorType = "agent"
)

// Valid reports whether a is a known author type.
func (a AuthorType) Valid() bool {
	return a == AuthorHuman || a == AuthorAgent
}

// ProjectConfig is stored as JSON on the project row.
type ProjectConfig struct {
	StrictTransitions   bool     `json:"strictTransitions"`
	MaxConcurrentAgents int      `json:"maxConcurrentAgents,omitempty"`
	AllowedAgents       []string `json:"allowedAgents,omitempty"`
}

// AllowsAgent reports whether agentID may execute tasks of the project.
// An empty allow-list or an empty agentID means no restriction.
func (c ProjectConfig) AllowsAgent(agentID string) bool {
	if agentID == "" || len(c.AllowedAgents) == 0 {
		return true
	}
	return slices.Contains(c.AllowedAgents, agentID)
}

// Project is the top-level container for a pipeline.
type Project struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Config         ProjectConfig `json:"config"`
	SystemPrompt   *string       `json:"system_prompt,omitempty"`
	Pinned         bool          `json:"pinned"`
	LastAccessedAt *time.Time    `json:"last_accessed_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Queue is a named stage of a project's pipeline.
type Queue struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Name         string    `json:"name"`
	OwnerType    OwnerType `json:"owner_type"`
	Description  *string   `json:"description,omitempty"`
	SystemPrompt *string   `json:"system_prompt,omitempty"`
	Position     int       `json:"position"`
	AgentLimit   int       `json:"agent_limit"`
	CreatedAt    time.Time `json:"created_at"`
}

// Transition is a directed edge between two queues of the same project.
type Transition struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	FromQueueID string          `json:"from_queue_id"`
	ToQueueID   string          `json:"to_queue_id"`
	ActorType   ActorType       `json:"actor_type"`
	Conditions  json.RawMessage `json:"conditions,omitempty"`
	AutoTrigger bool            `json:"auto_trigger"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Task is a unit of work living in exactly one queue.
type Task struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	QueueID       string     `json:"queue_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Priority      int        `json:"priority"`
	SessionKey    *string    `json:"session_key,omitempty"`
	AssignedAgent *string    `json:"assigned_agent,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	Error         *string    `json:"error,omitempty"`
	ErrorAt       *time.Time `json:"error_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Claimed reports whether an agent currently holds the task.
func (t *Task) Claimed() bool {
	return t.AssignedAgent != nil
}

// Errored reports whether the task is parked with an error.
func (t *Task) Errored() bool {
	return t.Error != nil
}

// TaskHistory records one completed move.
type TaskHistory struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	FromQueueID *string   `json:"from_queue_id,omitempty"`
	ToQueueID   string    `json:"to_queue_id"`
	Actor       string    `json:"actor"`
	Note        *string   `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TaskComment is one entry of a task's conversation.
type TaskComment struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"task_id"`
	AuthorType AuthorType `json:"author_type"`
	Author     *string    `json:"author,omitempty"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
}
