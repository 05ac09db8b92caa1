// Package influxdb writes light telemetry to InfluxDB v2 using
// influxdb-client-go.
//
// Each refresh of a light produces one light_level point tagged with the
// device ID and protocol, carrying on, brightness (0-255) and level
// (0-100) fields.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteLightLevel("tcp-216438", true, 153)
//
// Writes are non-blocking and batched per the batch_size and
// flush_interval settings. Asynchronous failures are delivered to the
// SetOnError callback wrapped in ErrWriteFailed.
package influxdb
