package store

import "errors"

var (
	// ErrLengthMismatch is returned by Add when the number of texts and
	// metadata entries disagree. This is a programming error on the
	// caller's side and is never retried.
	ErrLengthMismatch = errors.New("texts and metadata counts do not match")

	// ErrStoreUnavailable is returned when the persisted backend failed
	// to open, read, or write.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrDimensionMismatch is returned when a vector's width does not
	// match the dimension the collection was created with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
