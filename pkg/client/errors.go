package client

import (
	"errors"
	"fmt"

	"github.com/AmyangXYZ/rtseries/pkg/packet"
)

var (
	ErrSessionClosed      = errors.New("session closed")
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// ServerError is an ERROR_MESSAGE returned for a request.
type ServerError struct {
	Code    packet.ErrorCode
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCode reports whether err carries a ServerError with code.
func IsCode(err error, code packet.ErrorCode) bool {
	var serverErr *ServerError
	return errors.As(err, &serverErr) && serverErr.Code == code
}

// SessionError means a session could not be opened.
type SessionError struct {
	URL string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("open session to %s: %v", e.URL, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

type TopicCreationError struct {
	Path string
	Err  error
}

func (e *TopicCreationError) Error() string {
	return fmt.Sprintf("add topic %s: %v", e.Path, e.Err)
}

func (e *TopicCreationError) Unwrap() error { return e.Err }

type AppendError struct {
	Path string
	Err  error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("append to %s: %v", e.Path, e.Err)
}

func (e *AppendError) Unwrap() error { return e.Err }

type RemovalError struct {
	Path string
	Err  error
}

func (e *RemovalError) Error() string {
	return fmt.Sprintf("remove topic %s: %v", e.Path, e.Err)
}

func (e *RemovalError) Unwrap() error { return e.Err }
