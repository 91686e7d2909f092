package ocr

import (
	"fmt"
	"strings"
)

// ModelInvocationError is a failed provider call: network error,
// timeout, or a non-2xx upstream response. It is recoverable through
// escalation and fatal only once the whole chain is exhausted.
type ModelInvocationError struct {
	Provider string
	Model    string
	Status   int
	Body     string
	Err      error
}

func (e *ModelInvocationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s invocation failed", e.Provider, e.Model)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// ResponseParseError is model output that could not be read as JSON
// even after brace extraction. Never fatal: the regex recovery path
// still produces a best-effort result.
type ResponseParseError struct {
	Model string
	Err   error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("unparseable response from %s: %v", e.Model, e.Err)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }
