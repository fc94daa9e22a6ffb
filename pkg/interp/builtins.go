package interp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/orchidlang/orchid/pkg/errs"
	"github.com/orchidlang/orchid/pkg/provider"
	"github.com/orchidlang/orchid/pkg/value"
)

// builtinNames is the distinguished built-in set dispatched by name ahead of
// the reasoning-macro fallback (spec.md §4.4 step 3).
var builtinNames = map[string]bool{
	"Search": true, "Confidence": true, "Checkpoint": true, "Rollback": true,
	"Trace": true, "Cost": true, "Elapsed": true, "Log": true, "Error": true,
	"Save": true, "len": true, "Discover": true, "Generate": true,
}

// dispatchBuiltin implements spec.md §4.11. handled is false when name isn't
// one of the distinguished built-ins, signaling the caller to fall through
// to the reasoning-macro path.
func (it *Interpreter) dispatchBuiltin(ctx context.Context, name string, positional []value.Value, kwargs map[string]value.Value, tags []provider.Tag, envH value.EnvHandle, pos errs.Position) (value.Value, bool, error) {
	if !builtinNames[name] {
		return value.Null, false, nil
	}
	switch name {
	case "Checkpoint":
		label := optionalString(positional, kwargs, "label", "default")
		it.mu.Lock()
		it.checkpoints[label] = checkpoint{
			bindings: cloneBindings(it.arena.OwnBindings(envH)),
			context:  it.implicitContext.Clone(),
		}
		it.mu.Unlock()
		it.recall.Remember(ctx, "checkpoint:"+label, it.implicitContext.String())
		return value.Null, true, nil

	case "Rollback":
		label := optionalString(positional, kwargs, "label", "default")
		it.mu.Lock()
		cp, ok := it.checkpoints[label]
		it.mu.Unlock()
		if !ok {
			return value.Null, true, errs.New(errs.RuntimeError, pos, "no checkpoint labeled %q", label)
		}
		it.arena.ReplaceOwnBindings(envH, cloneBindings(cp.bindings))
		it.implicitContext = cp.context.Clone()
		return value.Null, true, nil

	case "Discover":
		pattern := optionalString(positional, kwargs, "pattern", "*")
		return value.List(discoverValues(it.discoverCandidates(ctx), pattern)), true, nil

	case "len":
		if len(positional) == 0 {
			return value.Null, true, errs.New(errs.RuntimeError, pos, "len requires an argument")
		}
		return value.Number(float64(value.Len(positional[0]))), true, nil

	case "Elapsed":
		return value.String(fmt.Sprintf("%dms", it.Elapsed().Milliseconds())), true, nil

	case "Trace":
		depth := 20
		if len(positional) > 0 {
			depth = int(positional[0].Num())
		} else if v, ok := kwargs["depth"]; ok {
			depth = int(v.Num())
		}
		if it.trace == nil {
			return value.String(""), true, nil
		}
		return value.String(strings.Join(it.trace.Recent(depth), "\n")), true, nil

	case "Log":
		parts := make([]string, len(positional))
		for i, v := range positional {
			parts[i] = v.String()
		}
		msg := strings.Join(parts, " ")
		it.logger.Info(msg)
		it.traceLine("Log: " + msg)
		return value.Null, true, nil

	case "Error":
		msg := optionalString(positional, kwargs, "msg", "")
		return value.Null, true, errs.New(errs.UserError, pos, "%s", msg)

	case "Save":
		content := it.implicitContext
		if len(positional) > 0 {
			content = positional[0]
		} else if v, ok := kwargs["content"]; ok {
			content = v
		}
		it.traceLine("Save: " + content.String())
		return content, true, nil

	case "Cost":
		if it.opts.TokenCounter == nil {
			return value.Number(0), true, nil
		}
		tokens := it.opts.TokenCounter(it.implicitContext.String())
		return value.Number(float64(tokens) / 1000 * it.opts.CostPerKTokens), true, nil

	case "Confidence":
		scope := optionalString(positional, kwargs, "scope", "")
		c, err := it.provider.Confidence(ctx, scope)
		if err != nil {
			return value.Null, true, err
		}
		return value.Number(blendConfidence(c, it)), true, nil

	case "Search":
		query := optionalString(positional, kwargs, "query", it.implicitContext.String())
		if related := it.recall.Related(ctx, query, 3); len(related) > 0 {
			for i, r := range related {
				tags = append(tags, provider.Tag{Name: fmt.Sprintf("context_%d", i), Value: value.String(r)})
			}
		}
		v, err := it.provider.Search(ctx, query, tags)
		if err == nil {
			it.mu.Lock()
			it.searchSeq++
			seq := it.searchSeq
			it.mu.Unlock()
			it.recall.Remember(ctx, fmt.Sprintf("search:%d", seq), query+" -> "+v.String())
		}
		return v, true, err

	case "Generate":
		prompt := optionalString(positional, kwargs, "prompt", it.implicitContext.String())
		format := provider.Format(optionalString(nil, kwargs, "format", string(provider.FormatText)))
		v, err := it.provider.Generate(ctx, prompt, format, tags)
		return v, true, err
	}
	return value.Null, false, nil
}

func optionalString(positional []value.Value, kwargs map[string]value.Value, key, def string) string {
	if len(positional) > 0 {
		return positional[0].String()
	}
	if v, ok := kwargs[key]; ok {
		return v.String()
	}
	return def
}

func cloneBindings(m map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

// blendConfidence optionally blends Provider confidence with observable
// runtime signals, per spec.md §4.11: "the spec allows (but does not
// mandate) blending ... using equal weights and a clamp to [0,1]". We take
// the allowance: blend with a retry/error penalty derived signal.
func blendConfidence(base float64, it *Interpreter) float64 {
	signal := 1.0
	if it.retryCount+it.errorCount > 0 {
		signal = 1.0 / float64(1+it.retryCount+it.errorCount)
	}
	blended := (base + signal) / 2
	if blended < 0 {
		return 0
	}
	if blended > 1 {
		return 1
	}
	return blended
}

// discoverCandidates builds the full candidate set per spec.md §4.11/edge
// case 7: every namespace alias, every alias.tool/alias.operation, and the
// built-in + user macro/agent names.
func (it *Interpreter) discoverCandidates(ctx context.Context) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for alias := range it.namespaces {
		add(alias)
		if it.mcp != nil && it.mcp.HasServer(alias) {
			if tools, err := it.mcp.GetTools(alias); err == nil {
				for _, t := range tools {
					add(alias + "." + t)
				}
			}
		}
		if pl, ok := it.plugins[alias]; ok {
			for _, op := range pl.Operations() {
				add(alias + "." + op)
			}
		}
	}
	for name := range builtinNames {
		add(name)
	}
	for name := range it.macros {
		add(name)
	}
	for name := range it.agents {
		add(name)
	}
	sort.Strings(out)
	return out
}

func discoverValues(candidates []string, pattern string) []value.Value {
	lowerPattern := strings.ToLower(pattern)
	var out []value.Value
	for _, c := range candidates {
		if globMatch(lowerPattern, strings.ToLower(c)) {
			out = append(out, value.String(c))
		}
	}
	return out
}

// globMatch supports `*` (any run of characters except `.`) and `**` (any
// run of characters, including `.`), per spec.md §4.11's Discover grammar.
func globMatch(pattern, s string) bool {
	return globMatchRunes([]rune(pattern), []rune(s))
}

func globMatchRunes(p, s []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	if p[0] == '*' {
		if len(p) > 1 && p[1] == '*' {
			rest := p[2:]
			for i := 0; i <= len(s); i++ {
				if globMatchRunes(rest, s[i:]) {
					return true
				}
			}
			return false
		}
		rest := p[1:]
		for i := 0; i <= len(s); i++ {
			if i > 0 && s[i-1] == '.' {
				break
			}
			if globMatchRunes(rest, s[i:]) {
				return true
			}
		}
		return false
	}
	if len(s) == 0 {
		return false
	}
	if p[0] != s[0] {
		return false
	}
	return globMatchRunes(p[1:], s[1:])
}
