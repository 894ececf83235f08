// Package apierr maps the backend's heterogeneous error payloads to one
// user-facing message. Every REST caller goes through Normalize.
package apierr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error is a failed REST call.
type Error struct {
	Status  int
	Message string
	// Fields holds per-field validation errors when the server sent them.
	Fields map[string][]string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

func (e *Error) UserMessage() string { return e.Message }

// Unauthorized reports whether the server rejected the bearer token.
func (e *Error) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// Keys that carry a whole-request message rather than a field error.
var messageKeys = []string{"detail", "message", "error"}

// Normalize reads a response body of any shape the backend produces:
// {"detail": "..."}, a bare JSON string, a list of strings, or a
// field -> [messages] map. Anything else falls back to the status text.
func Normalize(status int, body []byte) *Error {
	e := &Error{Status: status}
	body = bytes.TrimSpace(body)

	var payload any
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		e.Message = fallback(status)
		return e
	}

	switch v := payload.(type) {
	case string:
		e.Message = strings.TrimSpace(v)
	case []any:
		e.Message = strings.Join(flatten(v), ", ")
	case map[string]any:
		for _, key := range messageKeys {
			if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
				e.Message = strings.TrimSpace(s)
				return e
			}
		}
		e.Fields = fieldErrors(v)
		e.Message = joinFields(e.Fields)
	}

	if e.Message == "" {
		e.Message = fallback(status)
	}
	return e
}

// Message is the text to show the user for any error the client returns.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	return err.Error()
}

func fallback(status int) string {
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("Request failed (%d %s)", status, text)
	}
	return fmt.Sprintf("Request failed (%d)", status)
}

func fieldErrors(m map[string]any) map[string][]string {
	out := make(map[string][]string, len(m))
	for key, raw := range m {
		var msgs []string
		switch v := raw.(type) {
		case []any:
			msgs = flatten(v)
		case string:
			msgs = []string{v}
		case map[string]any:
			// Nested serializer errors collapse into "parent.child".
			for child, text := range fieldErrors(v) {
				out[key+"."+child] = text
			}
			continue
		default:
			b, _ := json.Marshal(v)
			msgs = []string{string(b)}
		}
		if len(msgs) > 0 {
			out[key] = msgs
		}
	}
	return out
}

func joinFields(fields map[string][]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		label := k
		if k == "non_field_errors" {
			parts = append(parts, strings.Join(fields[k], ", "))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", label, strings.Join(fields[k], ", ")))
	}
	return strings.Join(parts, " | ")
}

func flatten(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		default:
			b, _ := json.Marshal(v)
			out = append(out, string(b))
		}
	}
	return out
}
