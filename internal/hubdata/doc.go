// Package hubdata owns the persisted hub document (canvas-hub-data.yml).
//
// The document records the cloud-issued device identity, tokens, the
// provisioned MQTT topics and the linked user. It is the single shared
// mutable aggregate of the process: readers take a Snapshot copy and
// writers go through Update, which applies the change under a lock and
// saves it with a temp-file rename.
//
// A missing, empty or structurally incomplete document is replaced with
// defaults. Healing is lossy; the hub then registers again.
//
// # Usage
//
//	store, err := hubdata.Open(cfg.DocumentPath(), hubdata.Defaults(cfg.MQTT), log)
//	err = store.Update(func(doc *hubdata.Document) error {
//	    doc.User.ActiveSetup.ID = "setup-1"
//	    return nil
//	})
package hubdata
