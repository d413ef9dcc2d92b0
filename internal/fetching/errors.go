package fetching

import "errors"

var ErrMissingAgentID = errors.New("missing agent id")
