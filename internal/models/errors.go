package models

import "errors"

var (
	// ErrNoFileProvided is returned when an upload carries no usable file.
	ErrNoFileProvided = errors.New("no file provided")

	// ErrIndexNotReady is returned when a query arrives before any document was indexed.
	ErrIndexNotReady = errors.New("no document indexed")

	ErrConversionFailed      = errors.New("document conversion failed")
	ErrEmbeddingFailed       = errors.New("embedding failed")
	ErrModelInvocationFailed = errors.New("model invocation failed")
)
