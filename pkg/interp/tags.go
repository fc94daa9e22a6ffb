package interp

import (
	"context"
	"time"

	"github.com/orchidlang/orchid/pkg/ast"
	"github.com/orchidlang/orchid/pkg/errs"
	"github.com/orchidlang/orchid/pkg/provider"
	"github.com/orchidlang/orchid/pkg/value"
)

// ResolvedTag is a tag with its value expression evaluated once, per
// spec.md §4.9: "Tag resolution happens once per call".
type ResolvedTag struct {
	Name     string
	Value    value.Value
	HasValue bool
}

func (it *Interpreter) resolveTags(ctx context.Context, tags []ast.Tag, envH value.EnvHandle) ([]ResolvedTag, error) {
	out := make([]ResolvedTag, 0, len(tags))
	for _, t := range tags {
		rt := ResolvedTag{Name: t.Name}
		if t.Value != nil {
			v, err := it.evalExpr(ctx, t.Value, envH)
			if err != nil {
				return nil, err
			}
			rt.Value = v
			rt.HasValue = true
		}
		out = append(out, rt)
	}
	return out, nil
}

// tagPlan is the runtime-interpreted subset of a call's resolved tags
// (spec.md §4.9's table); unrecognized tags pass through to the Provider as
// prompt hints via asProviderTags.
type tagPlan struct {
	hasRetry   bool
	retryN     int
	fallback   ast.Node
	bestEffort bool
	cached     bool
	private    bool
	appendCtx  bool
	frozen     bool
	isolated   bool
	hasTimeout bool
	timeout    time.Duration
	raw        []ResolvedTag
}

func buildTagPlan(resolved []ResolvedTag, rawTags []ast.Tag) tagPlan {
	plan := tagPlan{raw: resolved}
	for i, rt := range resolved {
		switch rt.Name {
		case "retry":
			plan.hasRetry = true
			plan.retryN = 3
			if rt.HasValue && rt.Value.Kind == value.KindNumber {
				plan.retryN = int(rt.Value.Num())
			}
		case "fallback":
			if i < len(rawTags) {
				plan.fallback = rawTags[i].Value
			}
		case "best_effort":
			plan.bestEffort = true
		case "cached", "pure":
			plan.cached = true
		case "private":
			plan.private = true
		case "append":
			plan.appendCtx = true
		case "frozen":
			plan.frozen = true
		case "isolated":
			plan.isolated = true
		case "timeout":
			plan.hasTimeout = true
			plan.timeout = resolveTimeout(rt)
		}
	}
	return plan
}

// resolveTimeout interprets a <timeout=T> tag's value: milliseconds if
// bare, seconds if suffixed `s`, minutes if suffixed `m` (spec.md §4.9).
func resolveTimeout(rt ResolvedTag) time.Duration {
	if !rt.HasValue {
		return 30 * time.Second
	}
	n := rt.Value.Num()
	switch rt.Value.Unit() {
	case value.UnitSecond:
		return time.Duration(n * float64(time.Second))
	case value.UnitMinute:
		return time.Duration(n * float64(time.Minute))
	default:
		return time.Duration(n * float64(time.Millisecond))
	}
}

func (p tagPlan) effect() contextEffect {
	switch {
	case p.private:
		return ctxPrivate
	case p.appendCtx:
		return ctxAppend
	default:
		return ctxDefault
	}
}

// asProviderTags converts resolved tags into provider.Tag, passing through
// every tag (runtime-interpreted or not) as a prompt hint, per spec.md
// §4.9: "others pass through to the Provider as prompt hints".
func asProviderTags(resolved []ResolvedTag) []provider.Tag {
	out := make([]provider.Tag, len(resolved))
	for i, rt := range resolved {
		out[i] = provider.Tag{Name: rt.Name, Value: rt.Value}
	}
	return out
}

// runWithTags implements spec.md §4.9's order of enforcement: cache lookup
// -> timeout wrapper -> retry loop -> execute -> on success update cache
// and implicit-context policy -> on failure apply fallback/best_effort.
func (it *Interpreter) runWithTags(ctx context.Context, plan tagPlan, cacheKey string, envH value.EnvHandle, fn func(ctx context.Context) (value.Value, error)) (value.Value, contextEffect, error) {
	if plan.cached {
		it.mu.Lock()
		v, ok := it.cache[cacheKey]
		it.mu.Unlock()
		if ok {
			it.metrics.CacheHit()
			return v, plan.effect(), nil
		}
		it.metrics.CacheMiss()
	}

	attempt := func() (value.Value, error) {
		if !plan.hasTimeout {
			return fn(ctx)
		}
		return it.runWithTimeout(ctx, plan.timeout, fn)
	}

	maxTries := 1
	if plan.hasRetry {
		maxTries = plan.retryN + 1
	}

	var lastErr error
	var result value.Value
	for i := 0; i < maxTries; i++ {
		if i > 0 {
			it.mu.Lock()
			it.retryCount++
			it.mu.Unlock()
			it.metrics.Retried()
		}
		v, err := attempt()
		if err == nil {
			result = v
			lastErr = nil
			break
		}
		lastErr = err
		if isControlSignal(err) {
			return value.Null, ctxDefault, err
		}
	}

	if lastErr != nil {
		it.mu.Lock()
		it.errorCount++
		it.mu.Unlock()
		if plan.fallback != nil {
			fv, ferr := it.evalExpr(ctx, plan.fallback, envH)
			if ferr != nil {
				return value.Null, ctxDefault, ferr
			}
			return fv, plan.effect(), nil
		}
		if plan.bestEffort {
			return value.Null, plan.effect(), nil
		}
		return value.Null, ctxDefault, lastErr
	}

	if plan.cached {
		it.mu.Lock()
		it.cache[cacheKey] = result
		it.mu.Unlock()
	}
	return result, plan.effect(), nil
}

func (it *Interpreter) runWithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) (value.Value, error)) (value.Value, error) {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type res struct {
		v   value.Value
		err error
	}
	ch := make(chan res, 1)
	go func() {
		v, err := fn(cctx)
		select {
		case ch <- res{v, err}:
		default:
		}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-cctx.Done():
		return value.Null, errs.New(errs.Timeout, errs.Position{}, "operation exceeded timeout %s", d)
	}
}
