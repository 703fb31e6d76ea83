package directive

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMoveDirective(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"plain", "All good.\nMOVE TO: Done", "Done", true},
		{"hyphenated", "MOVE TO: needs-review", "needs-review", true},
		{"multi word", "MOVE TO: In Progress", "In Progress", true},
		{"json debris", "Pipeline healthy.\nMOVE TO: Done\"}]", "Done", true},
		{"bold", "**MOVE TO: Review**", "Review", true},
		{"quoted", "MOVE TO: \"Review\".", "Review", true},
		{"backticks", "MOVE TO: `QA`", "QA", true},
		{"lower case", "move to: done", "done", true},
		{"no space after colon", "MOVE TO:Todo", "Todo", true},
		{"trailing dash", "MOVE TO: Review -", "Review", true},
		{"underscore", "MOVE TO: ready_for_qa", "ready_for_qa", true},
		{"trailing underscore kept", "MOVE TO: stage_", "stage_", true},
		{"trailing hyphen kept", "MOVE TO: pre-", "pre-", true},
		{"dashes only", "MOVE TO: ---", "", false},
		{"last wins", "MOVE TO: Todo\nactually\nMOVE TO: Done", "Done", true},
		{"stuck", "I cannot proceed.\nMOVE TO: STUCK", "STUCK", true},
		{"unicode", "MOVE TO: Révision", "Révision", true},
		{"missing", "I did the work.", "", false},
		{"empty destination", "MOVE TO:\nDone", "", false},
		{"punctuation only", "MOVE TO: !!!", "", false},
		{"empty input", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseMoveDirective(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractResponseText(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"strips directive", "Fixed the build.\n\nMOVE TO: Done", "Fixed the build.", true},
		{"strips emphasis", "Fixed it.\n\n**MOVE TO: Done**", "Fixed it.", true},
		{"drops trailing text", "Summary.\nMOVE TO: Done\nthanks", "Summary.", true},
		{"strips blockquote", "Fixed it.\n> MOVE TO: Done", "Fixed it.", true},
		{"keeps closing backtick", "Run `make test`\nMOVE TO: Done", "Run `make test`", true},
		{"keeps closing emphasis", "All tests **pass**\n\nMOVE TO: Done", "All tests **pass**", true},
		{"keeps text before inline directive", "Shipped it. MOVE TO: Done", "Shipped it.", true},
		{"no directive", "  Just a note.  ", "Just a note.", true},
		{"directive only", "MOVE TO: Done", "", false},
		{"blank", "   \n", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractResponseText(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSentinels(t *testing.T) {
	assert.True(t, IsStuck("stuck"))
	assert.True(t, IsStuck(" STUCK "))
	assert.False(t, IsStuck("Stuckish"))
	assert.True(t, IsDone("Done"))
	assert.False(t, IsDone("Done Done"))
}

func TestExtractContent(t *testing.T) {
	str := "pointer"
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "hello", "hello"},
		{"string pointer", &str, "pointer"},
		{"nil string pointer", (*string)(nil), ""},
		{"blocks", []ContentBlock{
			{Type: "text", Text: "one"},
			{Type: "tool_use"},
			{Type: "text", Text: "two"},
		}, "one\ntwo"},
		{"decoded blocks", []any{
			map[string]any{"type": "text", "text": "a"},
			map[string]any{"type": "image"},
			"stray",
			map[string]any{"type": "text", "text": "b"},
		}, "a\nb"},
		{"map blocks", []map[string]any{{"type": "text", "text": "x"}}, "x"},
		{"message", map[string]any{"role": "assistant", "content": "inner"}, "inner"},
		{"map without content", map[string]any{"role": "assistant"}, ""},
		{"raw string", json.RawMessage(`"quoted"`), "quoted"},
		{"raw blocks", json.RawMessage(`[{"type":"text","text":"raw"}]`), "raw"},
		{"invalid raw", []byte("not json"), ""},
		{"number", 42, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractContent(tt.input))
		})
	}
}
