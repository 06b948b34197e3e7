package flat

import "errors"

var (
	// ErrBadMagic indicates the payload is not a flat index.
	ErrBadMagic = errors.New("not a flat index payload")
	// ErrUnsupportedVersion indicates a flat index written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported flat index version")
	// ErrCorrupt indicates the header and body disagree.
	ErrCorrupt = errors.New("corrupt flat index payload")
	// ErrTooLarge indicates a header declaring more data than the engine accepts.
	ErrTooLarge = errors.New("flat index payload too large")
)
