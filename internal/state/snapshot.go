package state

// Snapshot is the document broadcast on the state topic.
type Snapshot struct {
	State Sections `json:"state"`
}

// Sections groups the snapshot by subsystem.
type Sections struct {
	Simcoe  SimcoeSection  `json:"simcoe"`
	Palette PaletteSection `json:"palette"`
	Printer PrinterSection `json:"printer"`
}

// SimcoeSection carries user preferences.
type SimcoeSection struct {
	Data SimcoeData `json:"data"`
}

// SimcoeData holds the active setup.
type SimcoeData struct {
	ActiveSetup IDRef `json:"activeSetup"`
}

// IDRef is an object carrying only an id.
type IDRef struct {
	ID string `json:"id"`
}

// PaletteSection is the palette link state.
type PaletteSection struct {
	Data PaletteData `json:"data"`
}

// PaletteData is the palette connection.
type PaletteData struct {
	Connected bool       `json:"connected"`
	Serial    PortSerial `json:"serial"`
}

// PortSerial is a serial port without a baud rate.
type PortSerial struct {
	Port string `json:"port"`
}

// PrinterSection is the printer and its job.
type PrinterSection struct {
	Data PrinterData `json:"data"`
	Job  JobSection  `json:"job"`
}

// PrinterData is the printer connection and hardware state.
type PrinterData struct {
	Connected   bool          `json:"connected"`
	Serial      PrinterSerial `json:"serial"`
	Temperature Temperatures  `json:"temperature"`
	Fan         int           `json:"fan"`
	Motor       bool          `json:"motor"`
}

// PrinterSerial is the printer's serial connection.
type PrinterSerial struct {
	Port string `json:"port"`
	Baud int    `json:"baud"`
}

// Temperatures is the heater block. Nozzle is a list of tools.
type Temperatures struct {
	Nozzle  []Heater `json:"nozzle"`
	Bed     Heater   `json:"bed"`
	Chamber Heater   `json:"chamber"`
}

// Heater is one heater reading.
type Heater struct {
	Actual float64 `json:"actual"`
	Target float64 `json:"target"`
}

// JobSection is the current print job.
type JobSection struct {
	Name     string    `json:"name"`
	Progress float64   `json:"progress"`
	Time     JobTime   `json:"time"`
	Status   JobStatus `json:"status"`
	Data     JobData   `json:"data"`
}

// JobTime is the job start time, ISO-8601 UTC with milliseconds.
type JobTime struct {
	Start string `json:"start"`
}

// JobStatus names the job phase: "start", "pausing", "paused",
// "cancelling" or "".
type JobStatus struct {
	Name string `json:"name"`
}

// JobData holds job timing, filament and file details.
type JobData struct {
	TotalTime     float64  `json:"totalTime"`
	TimeRemaining float64  `json:"timeRemaining"`
	Filament      Filament `json:"filament"`
	File          JobFile  `json:"file"`
}

// Filament usage of the job.
type Filament struct {
	Length float64 `json:"length"`
}

// JobFile describes the printed file.
type JobFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Date string `json:"date"`
}
