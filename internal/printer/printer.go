package printer

import "context"

// Heater names.
const (
	HeaterTool0   = "tool0"
	HeaterBed     = "bed"
	HeaterChamber = "chamber"
)

// Connection is the printer's serial connection.
type Connection struct {
	// State is the printer state id, e.g. "OPERATIONAL" or "CLOSED".
	State    string `json:"state"`
	Port     string `json:"port"`
	Baudrate int    `json:"baudrate"`
	Profile  string `json:"profile,omitempty"`
}

// ConnectionOptions lists what the printer can connect with.
type ConnectionOptions struct {
	Ports     []string `json:"ports"`
	Baudrates []int    `json:"baudrates"`
}

// Progress of the current print. Nil fields are unknown.
type Progress struct {
	Completion    *float64 `json:"completion"`
	PrintTime     *float64 `json:"printTime"`
	PrintTimeLeft *float64 `json:"printTimeLeft"`
}

// CurrentData is the live printer state.
type CurrentData struct {
	State    string   `json:"state"`
	Progress Progress `json:"progress"`
}

// Job is the selected print job.
type Job struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	// Date is the file modification time, Unix seconds.
	Date int64 `json:"date"`
	// FilamentLength of tool0 in mm, nil when unknown.
	FilamentLength *float64 `json:"filamentLength,omitempty"`
}

// Temperature of one heater.
type Temperature struct {
	Actual float64 `json:"actual"`
	Target float64 `json:"target"`
}

// Temperatures by heater name.
type Temperatures map[string]Temperature

// Printer is the printer-control API.
type Printer interface {
	// Connect opens the serial connection. Empty port and zero baudrate
	// let the printer auto-detect.
	Connect(ctx context.Context, port string, baudrate int) error
	Disconnect(ctx context.Context) error

	Home(ctx context.Context, axes []string) error
	// Jog moves the head relative to its position at speed mm/min.
	Jog(ctx context.Context, x, y, z float64, speed int) error
	Extrude(ctx context.Context, amount float64) error
	FeedRate(ctx context.Context, factor int) error
	SetTemperature(ctx context.Context, heater string, value float64) error

	// SelectFile selects an uploads-relative file and optionally prints it.
	SelectFile(ctx context.Context, path string, print bool) error
	Cancel(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error

	// Commands sends raw gcode lines.
	Commands(ctx context.Context, commands ...string) error

	ConnectionOptions(ctx context.Context) (ConnectionOptions, error)
	Connection(ctx context.Context) (Connection, error)
	CurrentData(ctx context.Context) (CurrentData, error)
	CurrentJob(ctx context.Context) (Job, error)
	Temperatures(ctx context.Context) (Temperatures, error)
}
