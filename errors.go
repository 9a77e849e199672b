package tracectx

import "errors"

var (
	// ErrMissingTraceSeed is returned when a context is requested but the
	// carrier holds no usable traceparent and no request id was supplied.
	ErrMissingTraceSeed = errors.New("tracectx: no traceparent header and no request id")

	// ErrAlreadyEnded is returned when a finished span is mutated.
	ErrAlreadyEnded = errors.New("tracectx: span already ended")
)
