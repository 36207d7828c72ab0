package vault

import "errors"

// Error kinds shared by every vault component. Callers wrap them with
// fmt.Errorf("...: %w", Err...) and match with errors.Is.
var (
	// ErrNotFound is returned for unknown account ids.
	ErrNotFound = errors.New("not found")
	// ErrValidation covers malformed input and blocked registrations.
	ErrValidation = errors.New("validation failed")
	// ErrSourceUnavailable marks transient chain source failures.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrUnsupportedChain is returned when no observer serves a chain.
	ErrUnsupportedChain = errors.New("unsupported chain")
	// ErrCorrupt marks a persisted record that no longer parses.
	ErrCorrupt = errors.New("corrupt record")
)
