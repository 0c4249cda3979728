package pipeline

import "fmt"

// Handler failure causes. The worker maps a cause to retriable vs fatal and
// the failure reply quotes it verbatim.
const (
	CauseDownload = "download"
	CauseExtract  = "extract"
	CauseLLM1     = "llm1"
	CauseLLM2     = "llm2"
	CauseChatPost = "chat_post"
	CauseParse    = "parse"
	CauseDB       = "db"
	CauseFatal    = "fatal"
)

// HandlerError is a typed step failure. Retriable errors send the job back
// to the queue with backoff; fatal ones fail it immediately.
type HandlerError struct {
	Cause string
	Fatal bool
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Cause, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Retriable wraps a transient step failure.
func Retriable(cause string, err error) *HandlerError {
	return &HandlerError{Cause: cause, Err: err}
}

// Fatalf wraps an unrecoverable step failure.
func Fatalf(cause string, format string, args ...any) *HandlerError {
	return &HandlerError{Cause: cause, Fatal: true, Err: fmt.Errorf(format, args...)}
}
