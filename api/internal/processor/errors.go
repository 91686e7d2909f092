package processor

import "fmt"

// InvalidInputError rejects an upload before any model call is made:
// empty, oversized, or an unsupported media type.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// ProcessingFailedError is terminal: adaptive routing failed and the
// fallback-strategy rescue failed too.
type ProcessingFailedError struct {
	Err error
}

func (e *ProcessingFailedError) Error() string {
	return fmt.Sprintf("receipt processing failed: %v", e.Err)
}

func (e *ProcessingFailedError) Unwrap() error {
	return e.Err
}
