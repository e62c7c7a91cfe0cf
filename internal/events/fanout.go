package events

import (
	"context"

	"github.com/nerrad567/dashauth/internal/auth"
)

// Fanout forwards every event to each recorder in order.
type Fanout []auth.EventRecorder

// Record implements auth.EventRecorder.
func (f Fanout) Record(ctx context.Context, e auth.Event) {
	for _, r := range f {
		r.Record(ctx, e)
	}
}

// Combine returns the recorders as one. Nil entries are skipped; with none
// left it returns auth.NopRecorder.
func Combine(recorders ...auth.EventRecorder) auth.EventRecorder {
	var f Fanout
	for _, r := range recorders {
		if r != nil {
			f = append(f, r)
		}
	}
	switch len(f) {
	case 0:
		return auth.NopRecorder{}
	case 1:
		return f[0]
	default:
		return f
	}
}
