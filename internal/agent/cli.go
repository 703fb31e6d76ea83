package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrCLIFailed is returned when the CLI exits cleanly but reports an error.
var ErrCLIFailed = errors.New("agent cli reported an error")

// runFunc executes a command and returns its stdout.
type runFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// CLIClient runs the claude CLI in print mode, one process per message.
type CLIClient struct {
	command string
	model   string
	workDir string
	run     runFunc

	mu      sync.Mutex
	started map[string]bool
}

// NewCLIClient returns a client invoking command (default "claude").
func NewCLIClient(command, model, workDir string) *CLIClient {
	if command == "" {
		command = "claude"
	}
	return &CLIClient{
		command: command,
		model:   model,
		workDir: workDir,
		run:     runCommand,
		started: map[string]bool{},
	}
}

type cliResult struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	IsError   bool   `json:"is_error"`
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
}

// Send runs the CLI with the message as the prompt. The first message of a
// session starts it under a UUID derived from the session key; later
// messages resume it.
func (c *CLIClient) Send(ctx context.Context, req Request) (*Response, error) {
	c.mu.Lock()
	resume := c.started[req.SessionKey]
	c.mu.Unlock()

	out, err := c.run(ctx, c.workDir, c.command, c.buildArgs(req, resume)...)
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", c.command, err)
	}

	var res cliResult
	if err := json.Unmarshal(bytes.TrimSpace(out), &res); err != nil {
		return nil, fmt.Errorf("decoding %s output: %w", c.command, err)
	}
	if res.IsError {
		return nil, fmt.Errorf("%w: %s", ErrCLIFailed, res.Result)
	}

	c.mu.Lock()
	c.started[req.SessionKey] = true
	c.mu.Unlock()

	return &Response{Content: res.Result}, nil
}

func (c *CLIClient) buildArgs(req Request, resume bool) []string {
	args := []string{"-p", req.Message, "--output-format", "json"}
	id := SessionUUID(req.SessionKey)
	if resume {
		args = append(args, "--resume", id)
	} else {
		args = append(args, "--session-id", id)
	}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	return args
}

// SessionUUID maps a session key onto a stable UUID.
func SessionUUID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

func runCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
