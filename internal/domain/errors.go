package domain

import "errors"

var (
	// ErrValidation signals malformed caller input; permanent until the input changes.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals a missing system record.
	ErrNotFound = errors.New("system not found")
	// ErrStoreRead signals a backing-store read failure.
	ErrStoreRead = errors.New("store read failed")
	// ErrStoreWrite signals a backing-store write failure.
	ErrStoreWrite = errors.New("store write failed")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingUnavailable signals an embedding provider failure.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrForecastUnavailable signals a weather provider failure or partial forecast.
	ErrForecastUnavailable = errors.New("forecast unavailable")
)
