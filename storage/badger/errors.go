package badger

import "errors"

var (
	// ErrBackendRequired is returned when a store is built without a backend.
	ErrBackendRequired = errors.New("badger backend is required")
)
