package cache

import (
	"context"
	"fmt"

	"github.com/lewisedginton/financial_qa/pkg/logger"
)

// Func is a memoizable call. A trailing Kwargs argument is treated as keyword
// arguments; every other argument is positional.
type Func[R any] func(ctx context.Context, args ...any) (R, error)

// Kwargs carries keyword arguments. Key order does not affect the cache key.
type Kwargs map[string]any

// Identifier is implemented by values whose methods are memoized. The identity
// must be stable across processes; memory addresses are not.
type Identifier interface {
	CacheIdentity() string
}

type memoizeConfig struct {
	prefix string
}

// MemoizeOption configures Memoize and MemoizeMethod.
type MemoizeOption func(*memoizeConfig)

// WithKeyPrefix namespaces keys as <prefix>_<digest>, which makes the entries
// reachable by InvalidateByPrefix.
func WithKeyPrefix(prefix string) MemoizeOption {
	return func(c *memoizeConfig) { c.prefix = prefix }
}

// Memoize wraps fn so equal (name, args, kwargs) calls reuse the cached result.
// A cached JSON null counts as a hit. Concurrent misses for one key run fn
// once. If fn succeeds but the result cannot be stored, the result is returned
// together with the Set error.
func Memoize[R any](m *Manager, name string, fn Func[R], opts ...MemoizeOption) Func[R] {
	return memoize(m, name, nil, fn, opts)
}

// MemoizeMethod is Memoize for a method of inst; distinct identities never
// share entries.
func MemoizeMethod[R any](m *Manager, inst Identifier, name string, fn Func[R], opts ...MemoizeOption) Func[R] {
	return memoize(m, name, inst, fn, opts)
}

func memoize[R any](m *Manager, name string, inst Identifier, fn Func[R], opts []MemoizeOption) Func[R] {
	cfg := memoizeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(ctx context.Context, args ...any) (R, error) {
		key := memoKey(cfg.prefix, name, inst, args)

		var cached R
		if found, err := m.GetInto(ctx, key, &cached); found && err == nil {
			return cached, nil
		} else if err != nil {
			m.log.Debug("Cached value no longer fits result type, recomputing",
				logger.StringField("func", name), logger.ErrorField(err))
		}

		// The shared call outlives any one caller; each caller still stops
		// waiting when its own ctx ends.
		shared := context.WithoutCancel(ctx)
		ch := m.calls.DoChan(key, func() (any, error) {
			var again R
			if found, err := m.GetInto(shared, key, &again); found && err == nil {
				return again, nil
			}
			out, err := fn(shared, args...)
			if err != nil {
				return out, err
			}
			return out, m.Set(shared, key, out)
		})
		select {
		case res := <-ch:
			out, _ := res.Val.(R)
			return out, res.Err
		case <-ctx.Done():
			var zero R
			return zero, ctx.Err()
		}
	}
}

func memoKey(prefix, name string, inst Identifier, args []any) string {
	positional := args
	kwargs := Kwargs{}
	if n := len(args); n > 0 {
		if kw, ok := args[n-1].(Kwargs); ok {
			positional, kwargs = args[:n-1], kw
		}
	}
	if positional == nil {
		positional = []any{}
	}

	data := map[string]any{
		"func":   name,
		"args":   positional,
		"kwargs": kwargs,
	}
	if inst != nil {
		data["class"] = fmt.Sprintf("%T", inst)
		data["instance"] = inst.CacheIdentity()
	}

	key := DeriveKey(data)
	if prefix != "" {
		return prefix + "_" + key
	}
	return key
}
