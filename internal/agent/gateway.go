package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StatusError is a non-2xx answer from the gateway.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the request may be repeated with the same
// idempotency key.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// GatewayClient speaks JSON over HTTP to an agent gateway that keeps
// sessions on its side.
type GatewayClient struct {
	baseURL     string
	token       string
	http        *http.Client
	maxAttempts int
	backoff     func(attempt int) time.Duration
}

// NewGatewayClient returns a client for the gateway at baseURL. A zero
// timeout leaves requests bounded only by their context.
func NewGatewayClient(baseURL, token string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		http:        &http.Client{Timeout: timeout},
		maxAttempts: 3,
		backoff:     backoff,
	}
}

type sendBody struct {
	Message string `json:"message"`
}

type sendReply struct {
	Content json.RawMessage `json:"content"`
}

// Send posts the message and returns the reply content.
func (c *GatewayClient) Send(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(sendBody{Message: req.Message})
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}

	var reply sendReply
	err = c.do(ctx, http.MethodPost, c.sessionURL(req.SessionKey, "messages"), body, req.IdempotencyKey, &reply)
	if err != nil {
		return nil, err
	}

	var content any
	if len(reply.Content) > 0 {
		if err := json.Unmarshal(reply.Content, &content); err != nil {
			return nil, fmt.Errorf("decoding reply content: %w", err)
		}
	}
	return &Response{Content: content}, nil
}

// History fetches the last limit messages of the session.
func (c *GatewayClient) History(ctx context.Context, sessionKey string, limit int) ([]Message, error) {
	u := c.sessionURL(sessionKey, "history") + "?limit=" + strconv.Itoa(limit)

	var reply struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, "", &reply); err != nil {
		return nil, err
	}
	return reply.Messages, nil
}

func (c *GatewayClient) sessionURL(key, leaf string) string {
	return c.baseURL + "/v1/sessions/" + url.PathEscape(key) + "/" + leaf
}

func (c *GatewayClient) do(ctx context.Context, method, u string, body []byte, idempotencyKey string, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				return err
			}
		}

		err := c.once(ctx, method, u, body, idempotencyKey, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var se *StatusError
		if errors.As(err, &se) && se.Retryable() {
			continue
		}
		return err
	}
	return lastErr
}

func (c *GatewayClient) once(ctx context.Context, method, u string, body []byte, idempotencyKey string, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * 500 * time.Millisecond
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
