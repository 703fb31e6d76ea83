// Package agent talks to the AI agents that execute tasks.
//
// Every backend implements Client. Backends that can replay a session's
// transcript also implement HistoryReader.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend names accepted by New.
const (
	BackendGateway   = "gateway"
	BackendAnthropic = "anthropic"
	BackendOllama    = "ollama"
	BackendCLI       = "cli"
)

// ErrUnknownBackend is returned by New for an unrecognised backend name.
var ErrUnknownBackend = errors.New("unknown agent backend")

// Request is one message sent into an agent session.
type Request struct {
	SessionKey     string
	Message        string
	IdempotencyKey string
}

// Response carries the agent's reply. Content is a string or a list of
// content blocks.
type Response struct {
	Content any
}

// Message is one entry of a session transcript.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Client sends a message into a session and waits for the reply.
type Client interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// HistoryReader returns the most recent messages of a session, oldest first.
type HistoryReader interface {
	History(ctx context.Context, sessionKey string, limit int) ([]Message, error)
}

// Config selects and configures a backend.
type Config struct {
	Backend   string
	URL       string
	Token     string
	Model     string
	MaxTokens int
	Command   string
	WorkDir   string
	Timeout   time.Duration
}

// New builds the client named by cfg.Backend.
func New(cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendGateway, "":
		if cfg.URL == "" {
			return nil, fmt.Errorf("gateway backend: url is required")
		}
		return NewGatewayClient(cfg.URL, cfg.Token, cfg.Timeout), nil
	case BackendAnthropic:
		if cfg.Token == "" {
			return nil, fmt.Errorf("anthropic backend: api key is required")
		}
		return NewAnthropicClient(cfg.Token, cfg.Model, cfg.MaxTokens, cfg.URL), nil
	case BackendOllama:
		c, err := NewOllamaClient(cfg.URL, cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendCLI:
		return NewCLIClient(cfg.Command, cfg.Model, cfg.WorkDir), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
