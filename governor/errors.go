package governor

import "errors"

var (
	// ErrStoreRequired is returned when no counter store is supplied.
	ErrStoreRequired = errors.New("counter store is required")

	// ErrInvalidLimit is returned for non-positive window limits.
	ErrInvalidLimit = errors.New("window limit must be positive")
)
