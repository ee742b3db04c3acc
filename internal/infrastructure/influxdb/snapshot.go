package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/canvas-link/internal/state"
)

// MeasurementPrinterState is the measurement state broadcasts are stored
// under.
const MeasurementPrinterState = "printer_state"

var _ state.Sink = (*Client)(nil)

// WriteSnapshot queues one point for a broadcast snapshot. The write is
// non-blocking; a closed client drops the point and returns ErrNotConnected.
func (c *Client) WriteSnapshot(_ context.Context, deviceID string, s state.Snapshot, at time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.writeAPI.WritePoint(SnapshotPoint(deviceID, s, at))
	return nil
}

// SnapshotPoint converts a snapshot into a printer_state point tagged by
// device and job status.
func SnapshotPoint(deviceID string, s state.Snapshot, at time.Time) *write.Point {
	p := s.State.Printer
	tags := map[string]string{"device_id": deviceID}
	if status := p.Job.Status.Name; status != "" {
		tags["job_status"] = status
	}

	fields := map[string]any{
		"printer_connected": p.Data.Connected,
		"palette_connected": s.State.Palette.Data.Connected,
		"bed_actual":        p.Data.Temperature.Bed.Actual,
		"bed_target":        p.Data.Temperature.Bed.Target,
		"chamber_actual":    p.Data.Temperature.Chamber.Actual,
		"chamber_target":    p.Data.Temperature.Chamber.Target,
		"fan":               int64(p.Data.Fan),
		"motor":             p.Data.Motor,
		"progress":          p.Job.Progress,
		"time_remaining":    p.Job.Data.TimeRemaining,
		"total_time":        p.Job.Data.TotalTime,
		"filament_length":   p.Job.Data.Filament.Length,
	}
	if len(p.Data.Temperature.Nozzle) > 0 {
		fields["nozzle_actual"] = p.Data.Temperature.Nozzle[0].Actual
		fields["nozzle_target"] = p.Data.Temperature.Nozzle[0].Target
	}
	return write.NewPoint(MeasurementPrinterState, tags, fields, at)
}
