package llm

import "errors"

var (
	// ErrNoAvailableProvider is returned when no provider is available.
	ErrNoAvailableProvider = errors.New("llm: no available provider")

	// ErrInvalidMessages is returned when the message history is malformed.
	ErrInvalidMessages = errors.New("llm: invalid message history")
)
