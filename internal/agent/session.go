package agent

import "sync"

// transcripts keeps per-session conversations in memory for backends whose
// APIs are stateless.
type transcripts struct {
	mu       sync.Mutex
	sessions map[string][]Message
}

func newTranscripts() *transcripts {
	return &transcripts{sessions: map[string][]Message{}}
}

// begin appends the user message and returns the conversation to send.
func (t *transcripts) begin(key, text string) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[key] = append(t.sessions[key], Message{Role: "user", Content: text})
	return append([]Message(nil), t.sessions[key]...)
}

// commit records the assistant reply.
func (t *transcripts) commit(key string, reply any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[key] = append(t.sessions[key], Message{Role: "assistant", Content: reply})
}

// abort drops the pending user message after a failed call.
func (t *transcripts) abort(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs := t.sessions[key]
	if n := len(msgs); n > 0 && msgs[n-1].Role == "user" {
		t.sessions[key] = msgs[:n-1]
	}
	if len(t.sessions[key]) == 0 {
		delete(t.sessions, key)
	}
}

func (t *transcripts) last(key string, limit int) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs := t.sessions[key]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]Message(nil), msgs...)
}
