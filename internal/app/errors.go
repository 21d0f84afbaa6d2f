package app

import (
	"fmt"
)

// An error with the HTTP status and message reported to the client.
type AppError struct {
	Code    int
	Message string
	Err     error // Cause, sent to the client in the error field when set.
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }
