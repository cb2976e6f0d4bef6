package protocol

import "errors"

var (
	ErrUnknownKind    = errors.New("protocol: unknown message kind")
	ErrFillerMismatch = errors.New("protocol: filler does not match sequence")
	ErrSizeMismatch   = errors.New("protocol: encoded size differs from declared size")
	ErrFaultInjected  = errors.New("protocol: read fault injected")
	ErrTruncatedBatch = errors.New("protocol: truncated batch")
	ErrBatchTooLarge  = errors.New("protocol: batch exceeds message cap")
)
