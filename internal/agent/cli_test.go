package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIBuildArgs(t *testing.T) {
	c := NewCLIClient("", "claude-opus-4-1", "")
	req := Request{SessionKey: "openlares:task:x", Message: "hello"}

	args := c.buildArgs(req, false)
	if args[0] != "-p" || args[1] != "hello" {
		t.Errorf("expected -p hello, got %v", args[:2])
	}
	cmdStr := strings.Join(args, " ")
	if !strings.Contains(cmdStr, "--output-format json") {
		t.Error("missing --output-format flag")
	}
	if !strings.Contains(cmdStr, "--session-id "+SessionUUID(req.SessionKey)) {
		t.Error("missing --session-id flag")
	}
	if !strings.Contains(cmdStr, "--model claude-opus-4-1") {
		t.Error("missing --model flag")
	}

	resumed := strings.Join(c.buildArgs(req, true), " ")
	if !strings.Contains(resumed, "--resume "+SessionUUID(req.SessionKey)) {
		t.Error("expected --resume on later messages")
	}
	if strings.Contains(resumed, "--session-id") {
		t.Error("--session-id should not be repeated")
	}
}

func TestSessionUUIDStable(t *testing.T) {
	a := SessionUUID("openlares:task:a")
	assert.Equal(t, a, SessionUUID("openlares:task:a"))
	assert.NotEqual(t, a, SessionUUID("openlares:task:b"))
	assert.Len(t, a, 36)
}

func TestCLISend(t *testing.T) {
	c := NewCLIClient("claude", "", "/work")
	var calls [][]string
	c.run = func(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "/work", dir)
		assert.Equal(t, "claude", name)
		calls = append(calls, args)
		return []byte(`{"type":"result","subtype":"success","is_error":false,"result":"All set.\nMOVE TO: Done","session_id":"x"}` + "\n"), nil
	}

	resp, err := c.Send(context.Background(), Request{SessionKey: "s", Message: "go"})
	require.NoError(t, err)
	assert.Equal(t, "All set.\nMOVE TO: Done", resp.Content)

	_, err = c.Send(context.Background(), Request{SessionKey: "s", Message: "again"})
	require.NoError(t, err)

	require.Len(t, calls, 2)
	assert.Contains(t, calls[0], "--session-id")
	assert.Contains(t, calls[1], "--resume")
}

func TestCLISendErrors(t *testing.T) {
	tests := []struct {
		name   string
		out    string
		runErr error
		want   error
	}{
		{"reported error", `{"type":"result","is_error":true,"result":"rate limited"}`, nil, ErrCLIFailed},
		{"garbage output", "not json", nil, nil},
		{"exec failure", "", errors.New("exit status 1"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCLIClient("", "", "")
			c.run = func(context.Context, string, string, ...string) ([]byte, error) {
				return []byte(tt.out), tt.runErr
			}
			_, err := c.Send(context.Background(), Request{SessionKey: "s", Message: "m"})
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.False(t, c.started["s"], "failed sessions are not marked started")
		})
	}
}
