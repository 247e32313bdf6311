package gateway

// ValidationError reports a request payload that failed a precondition.
// It is detected before any host invocation and maps to HTTP 400.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

// HostError wraps a failure from the host command executor. It maps to
// HTTP 500 and its message is the underlying error's string form.
type HostError struct {
	cause error
}

func (e *HostError) Error() string {
	return e.cause.Error()
}

func (e *HostError) Unwrap() error {
	return e.cause
}
