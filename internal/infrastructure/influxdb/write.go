package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementAuthEvents is the measurement auth events are written to.
const MeasurementAuthEvents = "auth_events"

// authEventPoint builds one auth_events point. Role is empty for events
// without a known principal (failed logins) and is then tagged "unknown".
func authEventPoint(event, role string, principalID int64, at time.Time) *write.Point {
	if role == "" {
		role = "unknown"
	}
	return write.NewPoint(
		MeasurementAuthEvents,
		map[string]string{
			"event": event,
			"role":  role,
		},
		map[string]interface{}{
			"principal_id": principalID,
			"count":        1,
		},
		at,
	)
}

// WriteAuthEvent queues one auth event point. The write is non-blocking;
// failures surface through SetOnError.
func (c *Client) WriteAuthEvent(event, role string, principalID int64, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(authEventPoint(event, role, principalID, at))
}

