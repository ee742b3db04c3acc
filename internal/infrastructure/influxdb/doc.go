// Package influxdb records printer state history in InfluxDB.
//
// Every state broadcast is written as one point of the printer_state
// measurement, tagged with the device id and job status. The client is a
// state.Sink:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without history
//	}
//	defer client.Close()
//
//	broadcaster, err := state.NewBroadcaster(state.Options{Sink: client, ...})
//
// Writes are batched according to batch_size and flush_interval, so a
// slow or unreachable server never delays a broadcast.
package influxdb
