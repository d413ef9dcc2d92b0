package mailbox

import "errors"

var (
	ErrInvalidKey       = errors.New("invalid mailbox key")
	ErrMalformedMessage = errors.New("malformed message file")
	ErrEntryNotFound    = errors.New("mailbox entry not found")
	ErrEntryExists      = errors.New("mailbox entry already exists")
)
