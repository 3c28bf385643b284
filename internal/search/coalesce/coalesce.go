// Package coalesce ensures at most one concurrent build runs per key:
// when several requests ask for the same translation batch or expansion
// set at once, only one does the work and the rest ride along on its
// result.
package coalesce

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Group deduplicates concurrent calls sharing the same key.
type Group struct {
	g singleflight.Group
}

// New creates an empty coalescing Group.
func New() *Group {
	return &Group{}
}

// Do runs fn for key if no call is already in flight for that key,
// otherwise waits for the in-flight call and shares its result. The fn
// closure should itself respect ctx cancellation; singleflight has no
// notion of per-caller cancellation; a caller that cancels while it is the
// only waiter still waits for fn to return.
func (g *Group) Do(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	v, err, _ := g.g.Do(key, func() (interface{}, error) {
		return fn(ctx)
	})
	return v, err
}

// Forget removes key from the in-flight set, so the next Do call for that
// key starts fresh rather than joining a stale result.
func (g *Group) Forget(key string) {
	g.g.Forget(key)
}
