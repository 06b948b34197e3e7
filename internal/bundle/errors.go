package bundle

import "errors"

var (
	// ErrNotFound indicates the bundle path does not exist.
	ErrNotFound = errors.New("bundle not found")
	// ErrUnreadable indicates the bundle path exists but cannot be read as a file.
	ErrUnreadable = errors.New("bundle unreadable")
	// ErrMalformed indicates the bundle cannot be decoded into the expected structure.
	ErrMalformed = errors.New("malformed bundle")
	// ErrMissingIndexPayload indicates the bundle has no (or an empty) index field.
	ErrMissingIndexPayload = errors.New("bundle has no index payload")
)
