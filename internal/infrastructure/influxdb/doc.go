// Package influxdb records gateway telemetry in InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library and writes:
//   - gateway_sessions: live connections opened and closed, with lifetimes
//   - gateway_requests: dispatched frames by resource, op and outcome
//   - gateway_backfill: catch-up queries run for watches
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Gateway.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.RequestHandled("nodes", "watch", 3*time.Millisecond, nil)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous write failures are reported through SetOnError.
package influxdb
