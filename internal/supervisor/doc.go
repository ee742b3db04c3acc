// Package supervisor runs the hub's long-lived background tasks.
//
// Every loop of the process (registration, linked-account poll, state
// broadcaster and watcher, printer watcher, local API) runs as a Task in
// one Group sharing a context. A task that fails is restarted after a
// delay that doubles up to MaxRestartDelay; a task that ran longer than
// StableThreshold starts again from the base delay. Cancelling the
// context stops every task and Wait joins them.
//
//	group := supervisor.New(ctx, supervisor.Config{RestartDelay: 5 * time.Second})
//	group.Go(supervisor.Task{Name: "broadcast", Run: broadcaster.RunBroadcast, RestartOnFailure: true})
//	...
//	err := group.Wait()
//
// A task that exhausts MaxRestartAttempts, or fails without
// RestartOnFailure, ends the whole group with its error.
package supervisor
