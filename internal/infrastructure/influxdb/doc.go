// Package influxdb provides InfluxDB connectivity for Gray Logic MIDI.
//
// It wraps the official influxdb-client-go v2 library for recording MIDI
// traffic and port state as time series.
//
// # Measurements
//
//	midi_messages  one point per recorded message
//	               tags:   port, endpoint, kind, command, channel
//	               fields: status, length, data1, data2, packed, timestamp_us
//	midi_ports     one point per port open or close
//	               tags:   port
//	               fields: open, ref_count
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteMessage("keys", rx.ID(), msg, timestamp)
//
// Writes are batched by batch_size and flush_interval and stamped with
// microsecond precision. Failed batches reach SetOnError and are counted in
// Stats.
package influxdb
