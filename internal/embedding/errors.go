package embedding

import "errors"

var (
	// ErrEmptyInput is returned when a single text to embed is empty or whitespace-only.
	ErrEmptyInput = errors.New("text to embed is empty")

	// ErrAllInputsEmpty is returned when every text in a batch is empty or whitespace-only.
	ErrAllInputsEmpty = errors.New("all texts to embed are empty")

	// ErrEncoderUnavailable is returned when the text encoder failed to
	// initialize or an embedding call against it failed.
	ErrEncoderUnavailable = errors.New("text encoder unavailable")
)
