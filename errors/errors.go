package errors

import "fmt"

var (
	ErrNotFound            = fmt.Errorf("not found")
	ErrForbidden           = fmt.Errorf("forbidden")
	ErrInvalidParticipants = fmt.Errorf("sender and receiver must differ")
	ErrInvalidArgument     = fmt.Errorf("invalid argument")
	ErrEmptyFile           = fmt.Errorf("empty file")
	ErrUnsupportedMedia    = fmt.Errorf("unsupported media type")
	ErrPayloadTooLarge     = fmt.Errorf("payload too large")
	ErrWorkerPanic         = fmt.Errorf("worker panic")
)
