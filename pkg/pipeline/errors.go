package pipeline

import "errors"

var (
	ErrUnknownContact = errors.New("unknown contact")
	ErrEmptyMessage   = errors.New("nothing to send")
)
