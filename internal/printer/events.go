package printer

// Event types.
const (
	EventPrinterStateChanged = "PrinterStateChanged"
	EventPrintStarted        = "PrintStarted"
	EventPrintCancelling     = "PrintCancelling"
	EventPrintCancelled      = "PrintCancelled"
	EventPrintDone           = "PrintDone"
	EventPrintPaused         = "PrintPaused"
	EventPrintResumed        = "PrintResumed"
	EventGcodeSent           = "GcodeSent"
)

// Printer state ids.
const (
	StateOperational     = "OPERATIONAL"
	StatePrinting        = "PRINTING"
	StatePausing         = "PAUSING"
	StatePaused          = "PAUSED"
	StateCancelling      = "CANCELLING"
	StateDetectSerial    = "DETECT_SERIAL"
	StateConnecting      = "CONNECTING"
	StateNone            = "NONE"
	StateUnknown         = "UNKNOWN"
	StateClosed          = "CLOSED"
	StateError           = "ERROR"
	StateClosedWithError = "CLOSED_WITH_ERROR"
	StateOffline         = "OFFLINE"
)

// disconnectedStates are the state ids in which no printer is usable.
var disconnectedStates = map[string]bool{
	StateDetectSerial:    true,
	StateConnecting:      true,
	StateNone:            true,
	StateUnknown:         true,
	StateClosed:          true,
	StateError:           true,
	StateClosedWithError: true,
	StateOffline:         true,
	"":                   true,
}

// IsConnectedState reports whether stateID means a printer is connected.
func IsConnectedState(stateID string) bool {
	return !disconnectedStates[stateID]
}

// Event is a printer notification.
type Event struct {
	Type string `json:"type"`

	// StateID is set for PrinterStateChanged.
	StateID string `json:"stateId,omitempty"`

	// Job is set for PrintStarted.
	Job *Job `json:"job,omitempty"`

	// Gcode is set for GcodeSent: the full command line.
	Gcode string `json:"gcode,omitempty"`
}

// EventHandler consumes printer events.
type EventHandler interface {
	HandlePrinterEvent(ev Event)
}
