package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, h http.HandlerFunc) *GatewayClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewGatewayClient(srv.URL+"/", "secret", 5*time.Second)
	c.backoff = func(int) time.Duration { return 0 }
	return c
}

func TestGatewaySend(t *testing.T) {
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/sessions/openlares:task:abc/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "idem-1", r.Header.Get("Idempotency-Key"))

		var body sendBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "do the thing", body.Message)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"done\nMOVE TO: Done"}]}`))
	})

	resp, err := c.Send(context.Background(), Request{
		SessionKey:     "openlares:task:abc",
		Message:        "do the thing",
		IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)

	blocks, ok := resp.Content.([]any)
	require.True(t, ok, "content blocks decode as a list")
	require.Len(t, blocks, 1)
}

func TestGatewaySendStringContent(t *testing.T) {
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":"plain reply"}`))
	})

	resp, err := c.Send(context.Background(), Request{SessionKey: "k", Message: "m"})
	require.NoError(t, err)
	assert.Equal(t, "plain reply", resp.Content)
}

func TestGatewayRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "same-key", r.Header.Get("Idempotency-Key"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"content":"ok"}`))
	})

	resp, err := c.Send(context.Background(), Request{SessionKey: "k", Message: "m", IdempotencyKey: "same-key"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGatewayDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad session", http.StatusBadRequest)
	})

	_, err := c.Send(context.Background(), Request{SessionKey: "k", Message: "m"})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "bad session", se.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGatewayGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Send(context.Background(), Request{SessionKey: "k", Message: "m"})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGatewayHonoursCancellation(t *testing.T) {
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, Request{SessionKey: "k", Message: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGatewayHistory(t *testing.T) {
	c := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/sessions/k/history", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"partial work"}]}`))
	})

	msgs, err := c.History(context.Background(), "k", 5)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "partial work", msgs[1].Content)
}

func TestStatusErrorRetryable(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		se := &StatusError{Code: tt.code}
		if se.Retryable() != tt.want {
			t.Errorf("Retryable(%d) = %v, want %v", tt.code, !tt.want, tt.want)
		}
	}
}
