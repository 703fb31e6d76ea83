package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openlares/openlares-sub000/internal/agent"
	"github.com/openlares/openlares-sub000/internal/db"
	"github.com/openlares/openlares-sub000/internal/directive"
	"github.com/openlares/openlares-sub000/internal/metrics"
	"github.com/openlares/openlares-sub000/internal/prompt"
)

// Resolution error messages recorded on tasks.
const (
	MsgNoDirective    = "Agent did not provide routing directive"
	MsgStuck          = "Agent couldn't determine destination queue"
	MsgUnknownQueue   = "Unknown destination queue"
	msgDispatchFailed = "Agent dispatch failed: "
)

const (
	historyLimit = 20
	partialChars = 500
	// cleanupTimeout bounds store writes made after the dispatch context has
	// been cancelled or has expired.
	cleanupTimeout = 30 * time.Second
)

// routing is what resolution needs to know about the task's surroundings.
type routing struct {
	project      *db.Project
	current      *db.Queue
	queues       []*db.Queue
	transitions  []*db.Transition
	destinations []*db.Queue
}

// execute dispatches one claimed task and resolves the reply. It returns
// the outcome label for metrics.
func (e *Executor) execute(ctx context.Context, f *flight) string {
	task := f.task

	rt, msg, err := prepare(ctx, e.store, task)
	if err != nil {
		return e.interrupted(ctx, f, fmt.Errorf("preparing prompt: %w", err))
	}

	req := agent.Request{SessionKey: sessionKeyOf(task), Message: msg}
	if task.ClaimedAt != nil {
		req.IdempotencyKey = IdempotencyKey(task.ID, *task.ClaimedAt)
	}

	e.setState(StateDispatched)
	resp, err := e.client.Send(ctx, req)
	if err != nil {
		return e.interrupted(ctx, f, err)
	}

	e.setState(StateRouting)

	// Resolution runs to completion even if Stop arrives now.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if owned, err := e.stillOwned(rctx, task); err != nil || !owned {
		return e.abandon(task, err)
	}

	return e.resolve(rctx, task, rt, directive.ExtractContent(resp.Content))
}

// Prompt renders the message the executor would send for task.
func Prompt(ctx context.Context, s Store, task *db.Task) (string, error) {
	_, msg, err := prepare(ctx, s, task)
	return msg, err
}

// prepare loads the task's surroundings and renders the prompt.
func prepare(ctx context.Context, s Store, task *db.Task) (*routing, string, error) {
	project, err := s.GetProject(ctx, task.ProjectID)
	if err != nil {
		return nil, "", err
	}
	queues, err := s.ListQueues(ctx, task.ProjectID)
	if err != nil {
		return nil, "", err
	}
	transitions, err := s.ListTransitions(ctx, task.ProjectID)
	if err != nil {
		return nil, "", err
	}
	comments, err := s.ListComments(ctx, task.ID)
	if err != nil {
		return nil, "", err
	}

	rt := &routing{project: project, queues: queues, transitions: transitions}
	for _, q := range queues {
		if q.ID == task.QueueID {
			rt.current = q
		}
	}
	if rt.current == nil {
		return nil, "", fmt.Errorf("queue %s of task %s: %w", task.QueueID, task.ID, db.ErrNotFound)
	}
	rt.destinations = prompt.Destinations(queues, transitions, task.QueueID)

	in := prompt.Input{
		Task:         task,
		Comments:     comments,
		Destinations: rt.destinations,
	}
	if project.SystemPrompt != nil {
		in.ProjectPrompt = *project.SystemPrompt
	}
	if rt.current.SystemPrompt != nil {
		in.QueuePrompt = *rt.current.SystemPrompt
	}
	return rt, prompt.Build(in), nil
}

// interrupted handles a dispatch that ended without a reply: stopped,
// timed out or failed.
func (e *Executor) interrupted(ctx context.Context, f *flight, cause error) string {
	task := f.task
	cctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	switch {
	case e.wasStopped(f):
		if e.release(cctx, task) {
			e.logger.Printf("executor: released %s on stop", task.ID)
		}
		return metrics.OutcomeStopped

	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		if owned, err := e.stillOwned(cctx, task); err != nil || !owned {
			return e.abandon(task, err)
		}
		e.attachPartialOutput(task)
		if !e.fail(cctx, task, TimeoutMessage(e.opts.ExecutionTimeout)) {
			return metrics.OutcomeAbandon
		}
		return metrics.OutcomeTimeout

	default:
		if !e.fail(cctx, task, msgDispatchFailed+cause.Error()) {
			return metrics.OutcomeAbandon
		}
		return metrics.OutcomeFailed
	}
}

// abandon logs why the executor leaves a task it no longer holds.
func (e *Executor) abandon(task *db.Task, err error) string {
	if err != nil {
		e.logger.Printf("executor: re-reading %s: %v", task.ID, err)
	} else {
		e.logger.Printf("executor: %s changed while the agent worked, leaving it alone", task.ID)
	}
	return metrics.OutcomeAbandon
}

// attachPartialOutput records the tail of the agent's last reply, when the
// backend can replay the session.
func (e *Executor) attachPartialOutput(task *db.Task) {
	hr, ok := e.client.(agent.HistoryReader)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.HistoryTimeout)
	defer cancel()

	msgs, err := hr.History(ctx, sessionKeyOf(task), historyLimit)
	if err != nil {
		e.logger.Printf("executor: fetching history of %s: %v", task.ID, err)
		return
	}

	var last string
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" {
			last = directive.ExtractContent(msgs[i].Content)
			break
		}
	}
	if last == "" {
		return
	}

	if _, err := e.store.AddComment(ctx, db.CommentInput{
		TaskID:     task.ID,
		AuthorType: db.AuthorAgent,
		Author:     e.opts.AgentID,
		Content:    tail(last, partialChars),
	}); err != nil {
		e.logger.Printf("executor: saving partial output of %s: %v", task.ID, err)
	}
}

// stillOwned reports whether the task is still in the queue it was claimed
// from and still held by the same claim.
func (e *Executor) stillOwned(ctx context.Context, claimed *db.Task) (bool, error) {
	now, err := e.store.GetTask(ctx, claimed.ID)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if now.QueueID != claimed.QueueID || now.AssignedAgent == nil || *now.AssignedAgent != e.opts.AgentID {
		return false, nil
	}
	if claimed.ClaimedAt != nil && (now.ClaimedAt == nil || !now.ClaimedAt.Equal(*claimed.ClaimedAt)) {
		return false, nil
	}
	return true, nil
}

// resolve routes the task according to the agent's reply.
func (e *Executor) resolve(ctx context.Context, task *db.Task, rt *routing, reply string) string {
	if text, ok := directive.ExtractResponseText(reply); ok {
		if _, err := e.store.AddComment(ctx, db.CommentInput{
			TaskID:     task.ID,
			AuthorType: db.AuthorAgent,
			Author:     e.opts.AgentID,
			Content:    text,
		}); err != nil {
			e.logger.Printf("executor: saving reply of %s: %v", task.ID, err)
		}
	}

	dest, ok := directive.ParseMoveDirective(reply)
	if !ok {
		return e.failed(ctx, task, MsgNoDirective)
	}
	if directive.IsStuck(dest) {
		return e.failed(ctx, task, MsgStuck)
	}

	strict := rt.project.Config.StrictTransitions

	if target := db.MatchQueue(rt.queues, dest); target != nil {
		if strict && !assistantMayMove(rt.transitions, task.QueueID, target.ID) {
			return e.failed(ctx, task, fmt.Sprintf("Transition not allowed: %s → %s", rt.current.Name, target.Name))
		}
		return e.move(ctx, task, target, "")
	}

	if directive.IsDone(dest) && len(rt.destinations) == 0 {
		if !e.release(ctx, task) {
			return metrics.OutcomeAbandon
		}
		e.logger.Printf("executor: %s finished with nowhere to go, released", task.ID)
		return metrics.OutcomeReleased
	}

	if strict {
		for _, q := range rt.destinations {
			if q.OwnerType == db.OwnerHuman {
				return e.move(ctx, task, q, fmt.Sprintf("Agent requested unknown queue %q", dest))
			}
		}
	}
	return e.failed(ctx, task, MsgUnknownQueue)
}

func (e *Executor) move(ctx context.Context, task *db.Task, to *db.Queue, note string) string {
	_, err := e.store.MoveTask(ctx, task.ID, to.ID, db.ActorAssistant, note)
	switch {
	case err == nil:
		e.logger.Printf("executor: moved %s to %s", task.ID, to.Name)
		return metrics.OutcomeMoved
	case errors.Is(err, db.ErrConflict):
		e.logger.Printf("executor: %s moved concurrently, leaving it alone", task.ID)
		return metrics.OutcomeAbandon
	default:
		return e.failed(ctx, task, fmt.Sprintf("Move to %s failed: %v", to.Name, err))
	}
}

// failed errors the task and returns the matching outcome label.
func (e *Executor) failed(ctx context.Context, task *db.Task, message string) string {
	if !e.fail(ctx, task, message) {
		return metrics.OutcomeAbandon
	}
	return metrics.OutcomeErrored
}

// fail records message on the task if this executor still holds its claim.
// It reports whether the error was recorded.
func (e *Executor) fail(ctx context.Context, task *db.Task, message string) bool {
	cl, ok := db.ClaimOf(task)
	if !ok {
		e.logger.Printf("executor: %s has no claim to fail", task.ID)
		return false
	}
	err := e.store.FailClaim(ctx, cl, message)
	switch {
	case err == nil:
		e.logger.Printf("executor: %s errored: %s", task.ID, message)
		return true
	case errors.Is(err, db.ErrConflict), errors.Is(err, db.ErrNotFound):
		e.logger.Printf("executor: %s is no longer ours, not recording %q", task.ID, message)
	default:
		e.logger.Printf("executor: recording error on %s: %v", task.ID, err)
	}
	return false
}

// release drops this executor's claim on the task. It reports whether the
// claim was released.
func (e *Executor) release(ctx context.Context, task *db.Task) bool {
	cl, ok := db.ClaimOf(task)
	if !ok {
		e.logger.Printf("executor: %s has no claim to release", task.ID)
		return false
	}
	err := e.store.ReleaseClaim(ctx, cl)
	switch {
	case err == nil:
		return true
	case errors.Is(err, db.ErrConflict), errors.Is(err, db.ErrNotFound):
		e.logger.Printf("executor: %s is no longer ours, leaving it alone", task.ID)
	default:
		e.logger.Printf("executor: releasing %s: %v", task.ID, err)
	}
	return false
}

func assistantMayMove(transitions []*db.Transition, from, to string) bool {
	for _, t := range transitions {
		if t.FromQueueID == from && t.ToQueueID == to && t.ActorType.Allows(db.ActorAssistant) {
			return true
		}
	}
	return false
}

// sessionKeyOf prefers the key stored with the claim.
func sessionKeyOf(task *db.Task) string {
	if task.SessionKey != nil && *task.SessionKey != "" {
		return *task.SessionKey
	}
	return SessionKey(task.ID)
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
