// Package provider defines the Provider interface: the sole cognitive
// dependency of the Orchid runtime (spec.md §6). The runtime treats the
// Provider as an external collaborator — concrete production
// implementations (LLM clients) live outside this module's boundary. This
// package only ships the interface plus a deterministic Stub used by tests
// and wired by the `orchid` CLI.
package provider

import (
	"context"

	"github.com/orchidlang/orchid/pkg/value"
)

// Tag mirrors ast.Tag without importing pkg/ast, so Provider implementations
// don't need to depend on the parser's node types.
type Tag struct {
	Name  string
	Value value.Value
}

// Options carries optional extras for an Execute call.
type Options struct {
	Attachments []value.Asset
}

// Format enumerates Generate's output kinds.
type Format string

const (
	FormatText     Format = "text"
	FormatImage    Format = "image"
	FormatAudio    Format = "audio"
	FormatVideo    Format = "video"
	FormatDocument Format = "document"
)

// Provider is the sole cognitive dependency of the runtime (spec.md §6).
// Implementations may return a list-kind Value for "list operations"
// (Decompose/Brainstorm/Classify); the runtime trusts whatever Value comes
// back.
type Provider interface {
	Execute(ctx context.Context, operation string, input string, ctxVars map[string]string, tags []Tag, opts *Options) (value.Value, error)
	Search(ctx context.Context, query string, tags []Tag) (value.Value, error)
	Confidence(ctx context.Context, scope string) (float64, error)
	ToolCall(ctx context.Context, namespace, operation string, args map[string]value.Value, tags []Tag) (value.Value, error)
	Generate(ctx context.Context, prompt string, format Format, tags []Tag) (value.Value, error)
	// Subtract implements the semantic `-` operator for string operands
	// (spec.md §4.4): "remove b's meaning from a" delegated to the Provider.
	Subtract(ctx context.Context, a, b string) (value.Value, error)
}
