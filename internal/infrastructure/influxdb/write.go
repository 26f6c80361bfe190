package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the gateway.
const (
	MeasurementSessions = "gateway_sessions"
	MeasurementRequests = "gateway_requests"
	MeasurementBackfill = "gateway_backfill"
)

// SessionOpened records a new live connection.
func (c *Client) SessionOpened(sessionID string) {
	c.WritePoint(MeasurementSessions,
		map[string]string{"event": "opened"},
		map[string]interface{}{"count": 1, "session_id": sessionID},
	)
}

// SessionClosed records a terminated connection and how long it lived.
func (c *Client) SessionClosed(sessionID string, lifetime time.Duration) {
	c.WritePoint(MeasurementSessions,
		map[string]string{"event": "closed"},
		map[string]interface{}{
			"count":       1,
			"session_id":  sessionID,
			"lifetime_ms": lifetime.Milliseconds(),
		},
	)
}

// RequestHandled records one dispatched frame. Resource and op are tags so
// they stay low-cardinality; unknown resource names should be folded by the
// caller before they get here.
func (c *Client) RequestHandled(resource, op string, latency time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.WritePoint(MeasurementRequests,
		map[string]string{"resource": resource, "op": op, "outcome": outcome},
		map[string]interface{}{"latency_ms": float64(latency.Microseconds()) / 1000},
	)
}

// BackfillCompleted records a catch-up query run for a watch.
func (c *Client) BackfillCompleted(resource string, events int, latency time.Duration) {
	c.WritePoint(MeasurementBackfill,
		map[string]string{"resource": resource},
		map[string]interface{}{
			"events":     events,
			"latency_ms": float64(latency.Microseconds()) / 1000,
		},
	)
}

// WritePoint writes a point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
