// Package executor runs tasks sitting in assistant-owned queues through an
// agent and routes them by the agent's reply.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openlares/openlares-sub000/internal/agent"
	"github.com/openlares/openlares-sub000/internal/db"
	"github.com/openlares/openlares-sub000/internal/events"
	"github.com/openlares/openlares-sub000/internal/metrics"
)

// Defaults for Options.
const (
	DefaultAgentID          = "main"
	DefaultPollInterval     = 5 * time.Second
	DefaultExecutionTimeout = 30 * time.Minute
	DefaultHistoryTimeout   = 10 * time.Second
)

// ErrAlreadyRunning is returned by Start on a running executor.
var ErrAlreadyRunning = errors.New("executor already running")

// Store is the part of the repository the executor needs.
type Store interface {
	ListProjects(ctx context.Context) ([]*db.Project, error)
	GetProject(ctx context.Context, id string) (*db.Project, error)
	GetNextClaimableTask(ctx context.Context, projectID, agentID string) (*db.Task, error)
	ClaimTask(ctx context.Context, taskID, agentID, sessionKey string) (*db.Task, error)
	ListClaimedTasks(ctx context.Context, agentID string) ([]*db.Task, error)
	GetTask(ctx context.Context, id string) (*db.Task, error)
	ListQueues(ctx context.Context, projectID string) ([]*db.Queue, error)
	ListTransitions(ctx context.Context, projectID string) ([]*db.Transition, error)
	ListComments(ctx context.Context, taskID string) ([]*db.TaskComment, error)
	AddComment(ctx context.Context, in db.CommentInput) (*db.TaskComment, error)
	MoveTask(ctx context.Context, taskID, toQueueID string, actor db.ActorType, note string) (*db.Task, error)
	FailClaim(ctx context.Context, cl db.Claim, message string) error
	ReleaseClaim(ctx context.Context, cl db.Claim) error
	ExpireStaleClaims(ctx context.Context, olderThan time.Duration, message string) (int, error)
}

// Options tunes an Executor. Zero values select the defaults.
type Options struct {
	AgentID string
	// ProjectIDs limits polling to these projects. Empty means all.
	ProjectIDs       []string
	PollInterval     time.Duration
	ExecutionTimeout time.Duration
	HistoryTimeout   time.Duration
	Logger           *log.Logger
	Events           events.Publisher
	Metrics          *metrics.Recorder
}

// State is the executor's position in the task cycle.
type State string

const (
	StateIdle       State = "idle"
	StateClaimed    State = "claimed"
	StateDispatched State = "dispatched"
	StateRouting    State = "routing"
)

// Status is a snapshot of an executor.
type Status struct {
	AgentID string     `json:"agent_id"`
	Running bool       `json:"running"`
	State   State      `json:"state"`
	TaskID  string     `json:"task_id,omitempty"`
	Since   *time.Time `json:"since,omitempty"`
}

// flight is the task currently held by the executor.
type flight struct {
	task    *db.Task
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// Executor polls for claimable tasks and runs at most one at a time.
type Executor struct {
	store  Store
	client agent.Client
	opts   Options
	logger *log.Logger

	tickMu sync.Mutex

	mu         sync.Mutex
	state      State
	current    *flight
	running    bool
	stopLoop   context.CancelFunc
	loopDone   chan struct{}
	stateSince time.Time
}

// New returns an idle executor.
func New(store Store, client agent.Client, opts Options) *Executor {
	if opts.AgentID == "" {
		opts.AgentID = DefaultAgentID
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ExecutionTimeout <= 0 {
		opts.ExecutionTimeout = DefaultExecutionTimeout
	}
	if opts.HistoryTimeout <= 0 {
		opts.HistoryTimeout = DefaultHistoryTimeout
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{
		store:  store,
		client: client,
		opts:   opts,
		logger: logger,
		state:  StateIdle,
	}
}

// SessionKey is the agent session used for a task.
func SessionKey(taskID string) string {
	return "openlares:task:" + taskID
}

// IdempotencyKey identifies one claim of a task. It is stable across
// re-dispatches of the same claim.
func IdempotencyKey(taskID string, claimedAt time.Time) string {
	name := taskID + "|" + claimedAt.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// TimeoutMessage is the error recorded on a task whose execution ran out
// of time.
func TimeoutMessage(d time.Duration) string {
	return fmt.Sprintf("Execution timed out after %s", d)
}

// Start recovers leftover claims and begins polling. A Stop arriving during
// recovery cancels it and Start returns without polling.
func (e *Executor) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		cancel()
		return ErrAlreadyRunning
	}
	e.running = true
	e.stopLoop = cancel
	e.loopDone = done
	e.mu.Unlock()

	rctx, stopRecovery := context.WithCancel(ctx)
	unhook := context.AfterFunc(loopCtx, stopRecovery)
	e.recoverClaims(rctx)
	unhook()
	stopRecovery()

	if loopCtx.Err() != nil {
		close(done)
		return nil
	}
	go e.loop(loopCtx, done)

	e.opts.Events.Publish(events.EventExecutorStarted, map[string]interface{}{
		"agent_id": e.opts.AgentID,
	})
	e.logger.Printf("executor: %s started (poll every %s)", e.opts.AgentID, e.opts.PollInterval)
	return nil
}

// Stop halts polling, cancels the in-flight dispatch and waits for the
// task to be released. The executor can be started again even when ctx
// expires first.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	cancel, loopDone := e.stopLoop, e.loopDone
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.stopLoop = nil
		e.loopDone = nil
		e.mu.Unlock()
	}()

	cancel()
	select {
	case <-loopDone:
	case <-ctx.Done():
		e.cancelFlight()
		return ctx.Err()
	}

	if f := e.cancelFlight(); f != nil {
		select {
		case <-f.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.opts.Events.Publish(events.EventExecutorStopped, map[string]interface{}{
		"agent_id": e.opts.AgentID,
	})
	e.logger.Printf("executor: %s stopped", e.opts.AgentID)
	return nil
}

// Status reports what the executor is doing.
func (e *Executor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{AgentID: e.opts.AgentID, Running: e.running, State: e.state}
	if e.current != nil {
		st.TaskID = e.current.task.ID
		since := e.stateSince
		st.Since = &since
	}
	return st
}

// Wait blocks until the in-flight dispatch, if any, has been resolved.
func (e *Executor) Wait(ctx context.Context) error {
	e.mu.Lock()
	f := e.current
	e.mu.Unlock()
	if f == nil {
		return nil
	}
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick performs one poll step: if idle, claim the next available task and
// dispatch it in the background. Losing a claim race is not an error.
func (e *Executor) Tick(ctx context.Context) error {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	if e.busy() {
		return nil
	}

	projectIDs, err := e.projectIDs(ctx)
	if err != nil {
		return err
	}

	for _, pid := range projectIDs {
		next, err := e.store.GetNextClaimableTask(ctx, pid, e.opts.AgentID)
		if errors.Is(err, db.ErrNotFound) {
			e.logger.Printf("executor: project %s not found, skipping", pid)
			continue
		}
		if err != nil {
			return fmt.Errorf("finding next task in %s: %w", pid, err)
		}
		if next == nil {
			continue
		}

		claimed, err := e.store.ClaimTask(ctx, next.ID, e.opts.AgentID, SessionKey(next.ID))
		if errors.Is(err, db.ErrNotClaimable) || errors.Is(err, db.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("claiming %s: %w", next.ID, err)
		}

		e.opts.Metrics.Claimed(e.opts.AgentID)
		e.logger.Printf("executor: claimed %s (%s)", claimed.ID, claimed.Title)
		e.launch(ctx, claimed)
		return nil
	}
	return nil
}

func (e *Executor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		if err := e.Tick(ctx); err != nil && ctx.Err() == nil {
			e.opts.Metrics.TickError(e.opts.AgentID)
			e.logger.Printf("executor: tick: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// recoverClaims errors claims older than the execution timeout and resumes a
// fresh claim held by this agent.
func (e *Executor) recoverClaims(ctx context.Context) {
	n, err := e.store.ExpireStaleClaims(ctx, e.opts.ExecutionTimeout, TimeoutMessage(e.opts.ExecutionTimeout))
	if err != nil {
		e.logger.Printf("executor: expiring stale claims: %v", err)
	} else if n > 0 {
		e.opts.Metrics.Expired(n)
		e.logger.Printf("executor: expired %d stale claim(s)", n)
	}

	held, err := e.store.ListClaimedTasks(ctx, e.opts.AgentID)
	if err != nil {
		e.logger.Printf("executor: listing held claims: %v", err)
		return
	}
	if len(held) == 0 {
		return
	}
	if len(held) > 1 {
		e.logger.Printf("executor: %d claims held by %s, resuming the oldest", len(held), e.opts.AgentID)
	}
	e.logger.Printf("executor: resuming %s", held[0].ID)
	e.launch(ctx, held[0])
}

func (e *Executor) projectIDs(ctx context.Context) ([]string, error) {
	if len(e.opts.ProjectIDs) > 0 {
		return e.opts.ProjectIDs, nil
	}
	projects, err := e.store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	return ids, nil
}

func (e *Executor) busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

func (e *Executor) setState(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
	e.stateSince = time.Now()
}

// launch starts the dispatch of a claimed task on its own goroutine. The
// dispatch outlives ctx; it is bounded by the execution timeout and Stop.
func (e *Executor) launch(ctx context.Context, task *db.Task) {
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.ExecutionTimeout)
	f := &flight{task: task, started: time.Now(), cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	e.current = f
	e.state = StateClaimed
	e.stateSince = f.started
	e.mu.Unlock()

	go func() {
		defer close(f.done)
		defer cancel()

		outcome := e.execute(execCtx, f)
		e.opts.Metrics.Finished(e.opts.AgentID, outcome, time.Since(f.started))

		e.mu.Lock()
		e.current = nil
		e.state = StateIdle
		e.stateSince = time.Now()
		e.mu.Unlock()
	}()
}

// cancelFlight cancels the in-flight dispatch, if any, marking it stopped.
func (e *Executor) cancelFlight() *flight {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.current
	if f != nil {
		f.stopped = true
		f.cancel()
	}
	return f
}

func (e *Executor) wasStopped(f *flight) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return f.stopped
}
