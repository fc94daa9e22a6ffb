package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/orchidlang/orchid/pkg/value"
)

// Stub is a deterministic Provider used by tests and by the `orchid` CLI.
// It never calls out to a real intelligence service: it echoes its input
// back in a recognizable shape so that scripts exercising reasoning macros
// can be asserted against without a live credential.
type Stub struct {
	// ExecuteFn, when set, overrides the default echo behavior. Tests use
	// this to simulate failures for retry/fallback/timeout scenarios.
	ExecuteFn func(operation, input string) (value.Value, error)

	ExecuteCalls int
	SearchCalls  int
}

var _ Provider = (*Stub)(nil)

func (s *Stub) Execute(ctx context.Context, operation, input string, ctxVars map[string]string, tags []Tag, opts *Options) (value.Value, error) {
	s.ExecuteCalls++
	if s.ExecuteFn != nil {
		return s.ExecuteFn(operation, input)
	}
	return value.String(fmt.Sprintf("%s: %s", operation, input)), nil
}

func (s *Stub) Search(ctx context.Context, query string, tags []Tag) (value.Value, error) {
	s.SearchCalls++
	return value.String(fmt.Sprintf("results for %s", query)), nil
}

func (s *Stub) Confidence(ctx context.Context, scope string) (float64, error) {
	return 0.8, nil
}

func (s *Stub) ToolCall(ctx context.Context, namespace, operation string, args map[string]value.Value, tags []Tag) (value.Value, error) {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, args[k].String()))
	}
	return value.String(fmt.Sprintf("%s:%s(%s)", namespace, operation, strings.Join(parts, ","))), nil
}

func (s *Stub) Generate(ctx context.Context, prompt string, format Format, tags []Tag) (value.Value, error) {
	return value.AssetValue(&value.Asset{
		MediaType:   mediaTypeFor(format),
		Mime:        "application/octet-stream",
		Description: prompt,
	}), nil
}

func mediaTypeFor(f Format) value.MediaType {
	switch f {
	case FormatImage:
		return value.MediaImage
	case FormatAudio:
		return value.MediaAudio
	case FormatVideo:
		return value.MediaVideo
	default:
		return value.MediaDocument
	}
}

// Subtract implements the "remove b's meaning from a" fallback for the
// string `-` operator: the Stub performs a literal substring removal, which
// is not semantically faithful but keeps deterministic tests self-contained
// (a real Provider would do this with a reasoning call).
func (s *Stub) Subtract(ctx context.Context, a, b string) (value.Value, error) {
	return value.String(strings.ReplaceAll(a, b, "")), nil
}
