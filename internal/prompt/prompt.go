// Package prompt renders the message sent to an agent for one task.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openlares/openlares-sub000/internal/db"
	"github.com/openlares/openlares-sub000/internal/directive"
)

// Input is everything the prompt is built from.
type Input struct {
	Task          *db.Task
	Comments      []*db.TaskComment
	ProjectPrompt string
	QueuePrompt   string
	// Destinations are the queues the agent may route the task to.
	Destinations []*db.Queue
}

// Build renders the prompt. Sections appear in a fixed order: project
// instructions, queue instructions, the task, the conversation so far and
// the routing instructions.
func Build(in Input) string {
	var b strings.Builder

	if p := strings.TrimSpace(in.ProjectPrompt); p != "" {
		b.WriteString(p + "\n\n")
	}
	if p := strings.TrimSpace(in.QueuePrompt); p != "" {
		b.WriteString(p + "\n\n")
	}

	b.WriteString("# Task: " + in.Task.Title + "\n\n")
	b.WriteString("**ID:** `" + in.Task.ID + "`\n")
	b.WriteString(fmt.Sprintf("**Priority:** %d\n\n", in.Task.Priority))
	if d := strings.TrimSpace(in.Task.Description); d != "" {
		b.WriteString(d + "\n\n")
	}

	writeConversation(&b, in.Comments)
	writeRouting(&b, in.Destinations)

	return b.String()
}

func writeConversation(b *strings.Builder, comments []*db.TaskComment) {
	if len(comments) == 0 {
		return
	}
	b.WriteString("## Conversation so far\n\n")
	for _, c := range comments {
		b.WriteString(fmt.Sprintf("[%s]: %s\n", role(c), strings.TrimSpace(c.Content)))
	}
	b.WriteString("\n")
}

func role(c *db.TaskComment) string {
	if c.Author != nil && *c.Author != "" {
		return string(c.AuthorType) + ":" + *c.Author
	}
	return string(c.AuthorType)
}

func writeRouting(b *strings.Builder, dests []*db.Queue) {
	b.WriteString("## Routing\n\n")
	if len(dests) == 0 {
		b.WriteString("When you are finished, end your reply with the line:\n\n")
		b.WriteString("MOVE TO: " + directive.Done + "\n")
		return
	}

	b.WriteString("When you are finished, choose where this task goes next:\n\n")
	for _, q := range dests {
		line := "- " + q.Name
		if q.Description != nil && *q.Description != "" {
			line += ": " + *q.Description
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\nEnd your reply with the line `MOVE TO: <queue name>` using one of the names above.\n")
	b.WriteString("If you cannot decide, end with `MOVE TO: " + directive.Stuck + "`.\n")
}

// Destinations returns the queues reachable from currentQueueID through a
// transition an assistant may take, without duplicates and in queue
// position order.
func Destinations(queues []*db.Queue, transitions []*db.Transition, currentQueueID string) []*db.Queue {
	reachable := map[string]bool{}
	for _, t := range transitions {
		if t.FromQueueID == currentQueueID && t.ActorType.Allows(db.ActorAssistant) {
			reachable[t.ToQueueID] = true
		}
	}

	var out []*db.Queue
	for _, q := range queues {
		if reachable[q.ID] {
			out = append(out, q)
			delete(reachable, q.ID)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}
