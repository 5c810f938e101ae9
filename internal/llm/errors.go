package llm

import (
	"errors"
	"fmt"
)

// ErrNoChoices is returned when a successful response carries no choice
var ErrNoChoices = errors.New("completion response contains no choices")

// Kind discriminates completion failures
type Kind int

const (
	// KindTransport means no response was received (network, DNS, timeout, cancellation)
	KindTransport Kind = iota + 1
	// KindRemote means the endpoint answered with an error status or an unusable body
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Error is a classified completion failure
type Error struct {
	Kind       Kind
	StatusCode int    // remote only; 0 when a 2xx body was unusable
	Body       string // remote error body, if any
	RequestID  string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindRemote && e.StatusCode != 0:
		return fmt.Sprintf("completion endpoint returned status %d: %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("completion %s failure: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("completion %s failure", e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or 0 when err is not a completion error
func KindOf(err error) Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return 0
}
