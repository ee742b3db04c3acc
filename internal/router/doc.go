// Package router answers remote requests arriving on the device's request
// topics.
//
// A request is published on
//
//	{prefix}/devices/{deviceId}/{originName}/request{path}
//
// as {header:{originID, msgID}, payload:{query, method}}. The router strips
// the request prefix to get the command path, runs its handler and
// publishes one response on
//
//	{prefix}/devices/{deviceId}/{originID}/response{path}
//
// echoing the msgID. Unknown paths get the default 204 "No Content"
// response. Malformed messages, undecodable queries, handler errors and
// handler panics are passed to the ErrorHandler and never answered.
//
// Messages on the device topic itself are control messages from the cloud
// (ACCOUNT_LINKED, ACCOUNT_UNLINKED) that update the linked account.
//
// After every response the broadcast counter is reset so the state change
// a command caused is published on the next tick.
package router
