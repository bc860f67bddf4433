package render

import "errors"

// Bind failure classes. Callers distinguish them with errors.Is; both leave
// the session unbound with no resources allocated.
var (
	// ErrSourceLoad marks media the platform decoder cannot read.
	ErrSourceLoad = errors.New("source cannot be loaded")

	// ErrContextCreation marks the absence of a usable rendering context.
	ErrContextCreation = errors.New("rendering context unavailable")
)
