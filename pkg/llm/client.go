// Package llm defines the LLM port used by the pipeline and its two
// runtimes: a provider-backed client and a deterministic offline engine.
package llm

import "context"

// Kind identifies which pipeline step a completion serves. The offline
// runtime keys its synthesized output on it.
type Kind string

// Completion kinds.
const (
	KindStructured Kind = "structured"
	KindSuggestion Kind = "suggestion"
)

// Request is one completion request. System and User are the fully rendered
// prompts; Kind and RecordNumber carry the metadata the offline runtime
// needs to produce contract-valid output.
type Request struct {
	System       string
	User         string
	Kind         Kind
	RecordNumber string
}

// Client is the LLM port. Implementations return the raw completion text;
// schema validation happens at the call site.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
