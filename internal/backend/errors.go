package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrTransport wraps failures where no HTTP response was received.
var ErrTransport = errors.New("backend unreachable")

// APIError is a non-success HTTP response from the backend.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

// UserMessage is the server-provided message, or a generic one.
func (e *APIError) UserMessage() string {
	return e.Message
}

type transportError struct {
	op  string
	err error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *transportError) Unwrap() []error {
	return []error{ErrTransport, e.err}
}

func (e *transportError) UserMessage() string {
	if isTimeout(e.err) {
		return "The request timed out, please try again"
	}
	return "Could not reach the server, please check your connection"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// extractMessage pulls a human-readable message out of an error body. It
// tries the message, error and detail fields and falls back to a generic
// message when the body is not JSON or carries none of them.
func extractMessage(status int, body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"message", "error", "detail"} {
			switch v := payload[key].(type) {
			case string:
				if s := strings.TrimSpace(v); s != "" {
					return s
				}
			case map[string]interface{}:
				if s, ok := v["message"].(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
		}
	}
	return fmt.Sprintf("request failed with status %d", status)
}
