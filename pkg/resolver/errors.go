package resolver

import "errors"

// Sentinel errors for resolver operations.
var (
	// ErrBlankMethodID is returned when a caller passes an empty or
	// whitespace-only method id.
	ErrBlankMethodID = errors.New("resolver: method id is blank")

	// ErrNoSources is returned by New when no source registrations are
	// supplied.
	ErrNoSources = errors.New("resolver: at least one source registration is required")

	// ErrClosed is returned when an operation is attempted on a closed
	// resolver.
	ErrClosed = errors.New("resolver: resolver is closed")
)
