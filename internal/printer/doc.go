// Package printer defines the printer-control API the hub drives and the
// events it observes.
//
// The octoprint subpackage implements Printer over the OctoPrint REST API
// and turns polled state transitions into Events.
package printer
