// Package registration owns the hub's cloud identity.
//
// On first run the device registers itself with the cloud (PUT devices),
// retrying at a fixed interval until the cloud issues credentials. A
// completed registration writes the certificate files, records the device
// and its derived topics in the hub document at schema version 3 and
// connects the broker session.
//
// After registration the workflow keeps the access token fresh, mirrors
// the linked user account, reports hostname changes and serves the
// account operations of the local UI (add user, unlink user, reset).
package registration
