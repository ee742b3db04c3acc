// Package cloud is the REST client for the cloud device API.
//
// The hub uses it to register itself, refresh its access token, keep its
// hostname current, manage the linked account and deregister. Paths are
// relative to the configured API base URL:
//
//	PUT    devices                       register (no auth)
//	POST   devices/{id}/token            refresh access token (no auth)
//	GET    devices/{id}                  device record
//	POST   devices/{id}                  hostname update
//	DELETE devices/{id}                  deregister
//	GET    devices/{id}/link             linked account (200 or 204)
//	DELETE devices/{id}/link             unlink
//	GET    devices/{id}/activation-code  account link code
package cloud
