// Package api provides the local HTTP API and WebSocket channel of the hub.
//
// The printer's own UI talks to the hub through this package: it reads the
// registration and connection status, triggers account commands (addUser,
// unlinkUser, resetCanvasData), reports palette link changes and receives
// UI notifications ({command, data}) over the WebSocket.
//
//	server, err := api.New(deps)
//	if err := server.Start(ctx); err != nil {
//	    return err
//	}
//	defer server.Close()
//
// The Hub is shared with the rest of the process: it is the notifier of
// the registration workflow, the router and storage, and the palette link
// of the router.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
