package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/openlares/openlares-sub000/internal/directive"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-5"
	defaultAnthropicMaxTokens = 4096
)

// AnthropicClient runs sessions against the Anthropic Messages API. The
// API is stateless, so the conversation is kept in memory and replayed on
// every turn.
type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	sessions  *transcripts
}

// NewAnthropicClient returns a client using apiKey. Empty model and zero
// maxTokens select defaults; a non-empty baseURL overrides the endpoint.
func NewAnthropicClient(apiKey, model string, maxTokens int, baseURL string) *AnthropicClient {
	if model == "" {
		model = defaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
		sessions:  newTranscripts(),
	}
}

// Send appends the message to the session and returns the model's text
// blocks.
func (c *AnthropicClient) Send(ctx context.Context, req Request) (*Response, error) {
	convo := c.sessions.begin(req.SessionKey, req.Message)

	messages := make([]anthropic.MessageParam, 0, len(convo))
	for _, m := range convo {
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(m.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(directive.ExtractContent(m.Content))},
		})
	}

	var reqOpts []option.RequestOption
	if req.IdempotencyKey != "" {
		reqOpts = append(reqOpts, option.WithHeader("Idempotency-Key", req.IdempotencyKey))
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  messages,
	}, reqOpts...)
	if err != nil {
		c.sessions.abort(req.SessionKey)
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var blocks []directive.ContentBlock
	var text []string
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type != "text" {
			continue
		}
		t := block.AsText().Text
		blocks = append(blocks, directive.ContentBlock{Type: "text", Text: t})
		text = append(text, t)
	}

	c.sessions.commit(req.SessionKey, strings.Join(text, "\n"))
	return &Response{Content: blocks}, nil
}

// History returns the in-memory transcript of the session.
func (c *AnthropicClient) History(_ context.Context, sessionKey string, limit int) ([]Message, error) {
	return c.sessions.last(sessionKey, limit), nil
}
