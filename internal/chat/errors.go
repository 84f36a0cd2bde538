package chat

import (
	"context"
	"errors"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrNoPartner      = errors.New("no conversation partner selected")
	ErrNoEventContext = errors.New("no event context for this conversation")
	ErrUnknownPartner = errors.New("partner not found in directory")
	ErrUnknownEvent   = errors.New("event is not shared with this partner")
	ErrSessionClosed  = errors.New("inbox session closed")

	// errStale marks a response that arrived after its thread or directory
	// request was superseded. It never reaches callers.
	errStale = errors.New("stale response")
)

// UserError is implemented by errors that carry text safe to show the user.
type UserError interface {
	error
	UserMessage() string
}

// UserMessage returns the text to surface for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ue UserError
	if errors.As(err, &ue) {
		return ue.UserMessage()
	}
	switch {
	case errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrNoPartner),
		errors.Is(err, ErrNoEventContext),
		errors.Is(err, ErrUnknownPartner),
		errors.Is(err, ErrUnknownEvent),
		errors.Is(err, ErrSessionClosed):
		return capitalize(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out, please try again"
	}
	return "Something went wrong, please try again"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
