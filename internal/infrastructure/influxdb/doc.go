// Package influxdb mirrors stored readings into InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. SQLite remains the
// system of record; InfluxDB receives a copy of every reading for long-range
// dashboards and retention policies that the 100-row history endpoint does
// not serve.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	engine.SetTelemetry(client)
//
// Each reading becomes one point in the "occupancy" measurement, tagged with
// device_id and model, with integer in, out and occupancy fields.
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval). Batch
// errors are delivered to the SetOnError callback. Connection and health
// check errors are returned directly.
package influxdb
