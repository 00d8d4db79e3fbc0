package jobstatus

import "errors"

// Sentinel errors returned by Service.GetStatus. Callers should match them
// with errors.Is; returned errors carry additional context.
var (
	// ErrMissingParameter indicates the job key was not supplied.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrInvalidParameter indicates a key or job name that cannot name a
	// location inside the run directory.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotFound indicates no report queue record matches the key.
	ErrNotFound = errors.New("job not found")

	// ErrStoreUnavailable indicates the run directory could not be read or
	// the report queue could not be parsed.
	ErrStoreUnavailable = errors.New("store unavailable")
)
