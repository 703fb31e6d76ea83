package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/openlares/openlares-sub000/internal/directive"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.1"
)

// OllamaClient runs sessions against a local Ollama server.
type OllamaClient struct {
	client   *api.Client
	model    string
	sessions *transcripts
}

// NewOllamaClient returns a client for the server at hostURL.
func NewOllamaClient(hostURL, model string) (*OllamaClient, error) {
	if hostURL == "" {
		hostURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	u, err := url.Parse(hostURL)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama url: %w", err)
	}
	return &OllamaClient{
		client:   api.NewClient(u, http.DefaultClient),
		model:    model,
		sessions: newTranscripts(),
	}, nil
}

// Send appends the message to the session and returns the reply text.
// Ollama has no idempotency support; the key is ignored.
func (c *OllamaClient) Send(ctx context.Context, req Request) (*Response, error) {
	convo := c.sessions.begin(req.SessionKey, req.Message)

	messages := make([]api.Message, 0, len(convo))
	for _, m := range convo {
		messages = append(messages, api.Message{Role: m.Role, Content: directive.ExtractContent(m.Content)})
	}

	stream := false
	var reply api.ChatResponse
	err := c.client.Chat(ctx, &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
	}, func(r api.ChatResponse) error {
		reply = r
		return nil
	})
	if err != nil {
		c.sessions.abort(req.SessionKey)
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	c.sessions.commit(req.SessionKey, reply.Message.Content)
	return &Response{Content: reply.Message.Content}, nil
}

// History returns the in-memory transcript of the session.
func (c *OllamaClient) History(_ context.Context, sessionKey string, limit int) ([]Message, error) {
	return c.sessions.last(sessionKey, limit), nil
}
