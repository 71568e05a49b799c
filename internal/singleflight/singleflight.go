// Package singleflight shares one in-flight operation between concurrent callers.
//
// It wraps golang.org/x/sync/singleflight with two additions the API client
// needs: results are typed, and each waiter can stop waiting when its own
// context ends without aborting the shared operation for everyone else.
package singleflight

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Group manages in-flight calls keyed by name. The zero value is ready to use.
type Group[T any] struct {
	g singleflight.Group
}

// Do runs fn once for all concurrent callers with the same key. The handle is
// released as soon as fn returns, so the next call after settlement starts a
// fresh operation. fn receives a context detached from the caller's
// cancellation; it must bound itself (for example with a timeout).
//
// shared reports whether the result was delivered to more than one caller.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (val T, shared bool, err error) {
	detached := context.WithoutCancel(ctx)
	ch := g.g.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return val, res.Shared, res.Err
		}
		return res.Val.(T), res.Shared, nil
	case <-ctx.Done():
		return val, false, ctx.Err()
	}
}

