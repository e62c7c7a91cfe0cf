package events

import (
	"context"
	"time"

	"github.com/nerrad567/dashauth/internal/auth"
)

// PointWriter queues a metric point. *influxdb.Client satisfies it.
type PointWriter interface {
	WriteAuthEvent(event, role string, principalID int64, at time.Time)
}

// InfluxRecorder turns each auth event into an auth_events point.
type InfluxRecorder struct {
	w PointWriter
}

// NewInfluxRecorder returns a recorder writing through w.
func NewInfluxRecorder(w PointWriter) *InfluxRecorder {
	return &InfluxRecorder{w: w}
}

// Record implements auth.EventRecorder.
func (r *InfluxRecorder) Record(_ context.Context, e auth.Event) {
	r.w.WriteAuthEvent(string(e.Type), string(e.Role), e.PrincipalID, e.At)
}
