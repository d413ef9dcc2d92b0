package directory

import (
	"errors"
	"strings"
)

var (
	ErrInvalidAgentName = errors.New("invalid agent name")
	ErrUnknownAgent     = errors.New("unknown agent")
	ErrUnknownAgentID   = errors.New("unknown agent id")
	ErrEmptyRoster      = errors.New("no valid people found")
)

const (
	RoleSender    = "sender"
	RoleRecipient = "recipient"
)

// UnknownAgentError lists every name of one role that is not in the roster.
type UnknownAgentError struct {
	Role  string
	Names []string
}

func (e *UnknownAgentError) Error() string {
	if e.Role == RoleSender {
		return "Sender is not in directory: " + strings.Join(e.Names, ", ")
	}
	return "Recipient(s) not in directory: " + strings.Join(e.Names, ", ")
}

func (e *UnknownAgentError) Unwrap() error {
	return ErrUnknownAgent
}
