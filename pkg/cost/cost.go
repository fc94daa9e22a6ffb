// Package cost supplies the tiktoken-backed token counter wired into
// interp.Options.TokenCounter, exercised by the `Cost()` built-in
// (spec.md §4.11: cost = tokens(primary input) * CostPerKTokens / 1000).
package cost

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding matches the encoding most chat-completion models use;
// callers targeting a specific model should build their own counter with
// NewForModel instead.
const DefaultEncoding = "cl100k_base"

var (
	mu    sync.Mutex
	cache = map[string]*tiktoken.Tiktoken{}
)

func encodingFor(name string) (*tiktoken.Tiktoken, error) {
	mu.Lock()
	defer mu.Unlock()
	if enc, ok := cache[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	cache[name] = enc
	return enc, nil
}

// Counter returns a TokenCounter using the default cl100k_base encoding. If
// the encoding tables fail to load (e.g. no network access on first use and
// no embedded cache), it falls back to approximate (about 4 characters per
// token) so
// Cost() degrades gracefully rather than failing the whole script.
func Counter() func(s string) int {
	enc, err := encodingFor(DefaultEncoding)
	if err != nil {
		return approximate
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}
}

// NewForModel returns a TokenCounter using the encoding appropriate for the
// given model name, falling back to the default encoding on lookup failure.
func NewForModel(model string) func(s string) int {
	encName, err := tiktoken.GetEncodingNameForModel(model)
	if err != nil {
		return Counter()
	}
	enc, err := encodingFor(encName)
	if err != nil {
		return approximate
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}
}

// approximate estimates tokens at ~4 characters each, the rule of thumb
// tiktoken's own docs cite for English text.
func approximate(s string) int {
	n := len(s) / 4
	if n == 0 && len(s) > 0 {
		n = 1
	}
	return n
}
