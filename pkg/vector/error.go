package vector

import "errors"

var (
	// ErrNotConfigured is returned when indexing is requested without a driver.
	ErrNotConfigured = errors.New("vector tier not configured")

	// ErrDimensions is returned when an embedding does not match the
	// configured dimensions.
	ErrDimensions = errors.New("embedding dimensions mismatch")

	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")
)
