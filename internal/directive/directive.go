// Package directive pulls the routing instruction and the readable reply out
// of raw agent output.
//
// An agent ends its reply with a line such as
//
//	MOVE TO: Review
//
// naming the queue the task should go to next, or one of the sentinels
// STUCK and DONE. Agents wrap that line in markdown, quotes and JSON
// debris often enough that parsing is deliberately forgiving.
package directive

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
)

// Sentinel destinations.
const (
	Stuck = "STUCK"
	Done  = "DONE"
)

// moveRe matches "MOVE TO:" and captures the destination: a run of letters,
// digits, blanks, hyphens and underscores after optional emphasis or quotes.
var moveRe = regexp.MustCompile("(?i)MOVE[ \\t]+TO[ \\t]*:[ \\t]*[*\"'`\\[(]*([\\p{L}\\p{N}_ \\t-]+)")

// ParseMoveDirective returns the destination named by the last directive in
// text.
func ParseMoveDirective(text string) (string, bool) {
	m := lastMatch(text)
	if m == nil {
		return "", false
	}
	dest := strings.TrimSpace(dangleRe.ReplaceAllString(text[m[2]:m[3]], ""))
	if !strings.ContainsFunc(dest, isNameRune) {
		return "", false
	}
	return dest, true
}

// dangleRe matches a run of dashes or underscores set apart from the name
// by blanks, as in "Review -".
var dangleRe = regexp.MustCompile(`[ \t]+[-_]+[ \t]*$`)

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ExtractResponseText returns the reply with the directive and everything
// after it removed. It reports false when nothing readable remains.
func ExtractResponseText(text string) (string, bool) {
	if m := lastMatch(text); m != nil {
		text = text[:m[0]]
		// Markup opening the directive's own line goes with it.
		line := strings.LastIndexByte(text, '\n') + 1
		if strings.Trim(text[line:], "*_>` \t") == "" {
			text = text[:line]
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}

// IsStuck reports whether dest is the STUCK sentinel.
func IsStuck(dest string) bool {
	return strings.EqualFold(strings.TrimSpace(dest), Stuck)
}

// IsDone reports whether dest is the DONE sentinel.
func IsDone(dest string) bool {
	return strings.EqualFold(strings.TrimSpace(dest), Done)
}

func lastMatch(text string) []int {
	all := moveRe.FindAllStringSubmatchIndex(text, -1)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// ContentBlock is one element of a structured message body.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ExtractContent flattens an agent message body into text. Strings pass
// through; lists of content blocks yield their text blocks joined by
// newlines; anything else yields "".
func ExtractContent(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case []ContentBlock:
		var parts []string
		for _, b := range v {
			if b.Type == "text" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	case []map[string]any:
		items := make([]any, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return ExtractContent(items)
	case []any:
		var parts []string
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok || m["type"] != "text" {
				continue
			}
			if s, ok := m["text"].(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		if c, ok := v["content"]; ok {
			return ExtractContent(c)
		}
		return ""
	case json.RawMessage:
		return extractJSON(v)
	case []byte:
		return extractJSON(v)
	default:
		return ""
	}
}

func extractJSON(data []byte) string {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return ""
	}
	return ExtractContent(decoded)
}
