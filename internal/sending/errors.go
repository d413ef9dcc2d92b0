package sending

import "errors"

var (
	ErrNoRecipients   = errors.New("at least one recipient is required")
	ErrEmptyMessage   = errors.New("message body must not be empty")
	ErrDeliveryFailed = errors.New("message could not be delivered to any recipient")
)
