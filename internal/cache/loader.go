package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Loader fronts a Cache with a load function. Concurrent misses for the same
// key share one call to load.
type Loader[T any] struct {
	cache Cache[T]
	group singleflight.Group
	// gen moves on every Invalidate. It is part of the singleflight key, so
	// callers after an Invalidate never join an earlier load, and earlier
	// loads do not write their result back.
	gen atomic.Uint64
}

func NewLoader[T any](c Cache[T]) *Loader[T] {
	return &Loader[T]{cache: c}
}

// Get returns the cached value for key, calling load on a miss. Errors are
// not cached. A caller whose ctx ends stops waiting while the shared load
// carries on for the others.
func (l *Loader[T]) Get(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}

	gen := l.gen.Load()
	ch := l.group.DoChan(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if l.gen.Load() == gen {
			l.cache.Set(key, v)
		}
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache: unexpected value type %T for key %s", res.Val, key)
		}
		return v, nil
	}
}

// Invalidate drops every entry under prefix. Loads already in flight still
// answer their own callers, but the next Get starts a fresh one.
func (l *Loader[T]) Invalidate(prefix string) int {
	l.gen.Add(1)
	return l.cache.DeletePrefix(prefix)
}
