package document

import "errors"

var (
	// ErrUnsupportedFormat means the extension or bytes are not a format any
	// registered handler reads.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrOutOfRange means a unit index outside the document.
	ErrOutOfRange = errors.New("index out of range")
	// ErrLoadFailure is recorded as the Cause of a degraded document.
	ErrLoadFailure = errors.New("load failure")
	// ErrRenderFailure is recorded as the Cause of degraded content.
	ErrRenderFailure = errors.New("render failure")
)
