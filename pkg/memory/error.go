package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned for malformed namespaces or key names.
	// It is a caller error and is never retried.
	ErrInvalidKey = errors.New("invalid key")

	// ErrCapacityExceeded is returned when a volatile tier rejects a write,
	// either because the payload is oversized or because the tier is full.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrTimeout is returned when a caller-supplied deadline elapsed before an
	// operation completed. The operation may have partially succeeded.
	ErrTimeout = errors.New("timeout")

	// ErrVersionConflict is returned by a tier that refuses a write whose
	// version is not newer than the one it already stores.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDurableUnavailable wraps transient failures of the durable tier.
	ErrDurableUnavailable = errors.New("durable tier unavailable")

	// ErrCorrupt is returned when a stored payload no longer matches its checksum.
	ErrCorrupt = errors.New("checksum mismatch")

	// ErrDeadLettered is returned to a flushing caller when the pending write
	// exhausted its retries and was moved to the dead-letter log.
	ErrDeadLettered = errors.New("write moved to dead-letter log")

	// ErrClosed is returned once the manager or sync engine has shut down.
	ErrClosed = errors.New("closed")
)

// NotFoundError is returned when a key does not exist in a tier.
type NotFoundError struct {
	Key string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return "key not found"
	}

	return "key not found: " + e.Key
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// invalidKey builds an ErrInvalidKey with a reason attached.
func invalidKey(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidKey, fmt.Sprintf(format, args...))
}
