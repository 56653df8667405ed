package ts3query

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a command is sent without an open connection.
	ErrNotConnected = errors.New("not connected")

	// ErrInvalidCommand is returned for commands containing line breaks.
	ErrInvalidCommand = errors.New("command must be a single line")

	// ErrFieldMissing is returned when a response does not contain a requested field.
	ErrFieldMissing = errors.New("field missing")

	// ErrFieldNotNumeric is returned when a numeric field contains something else.
	ErrFieldNotNumeric = errors.New("field is not numeric")
)

// ConnectErrorKind classifies connection level failures.
type ConnectErrorKind int

const (
	// Unreachable means the tcp connection could not be established.
	Unreachable ConnectErrorKind = iota

	// UnexpectedGreeting means the peer did not greet like a ServerQuery interface.
	UnexpectedGreeting

	// ResponseTooLarge means the peer sent more data than MaxResponseSize without a terminator.
	ResponseTooLarge
)

func (k ConnectErrorKind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case UnexpectedGreeting:
		return "unexpected greeting"
	case ResponseTooLarge:
		return "response too large"
	}

	return fmt.Sprintf("ConnectErrorKind(%d)", int(k))
}

// ConnectError is returned for failures of the connection itself.
type ConnectError struct {
	Kind    ConnectErrorKind
	Address string
	Detail  string // greeting text or size information
	Err     error
}

func (e *ConnectError) Error() string {
	switch e.Kind {
	case Unreachable:
		if e.Err != nil {
			return fmt.Sprintf("could not connect to %s: %s", e.Address, e.Err.Error())
		}

		return fmt.Sprintf("could not connect to %s", e.Address)
	case UnexpectedGreeting:
		return fmt.Sprintf("unexpected response from %s: %q", e.Address, e.Detail)
	case ResponseTooLarge:
		return fmt.Sprintf("response from %s too large: %s", e.Address, e.Detail)
	}

	return fmt.Sprintf("%s: %s", e.Kind.String(), e.Address)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// FieldError is returned when a response field cannot be used.
type FieldError struct {
	Key   string
	Value string
	Err   error // ErrFieldMissing or ErrFieldNotNumeric
}

func (e *FieldError) Error() string {
	if errors.Is(e.Err, ErrFieldMissing) {
		return fmt.Sprintf("%s: %s", e.Key, e.Err.Error())
	}

	return fmt.Sprintf("%s: %s (%q)", e.Key, e.Err.Error(), e.Value)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
