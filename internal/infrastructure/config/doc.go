// Package config loads the daemon's config.yaml.
//
// Values are resolved in three layers: built-in defaults, the YAML file,
// then CANVASLINK_* environment variables (plus DEV_BASE_URL_API for
// pointing the hub at a development cloud). Validate runs last.
//
// This is process configuration only. Cloud-issued identity, topics and
// tokens live in the hub document (canvas-hub-data.yml) owned by package
// hubdata; the mqtt section here just seeds that document's defaults.
//
// Secrets such as the InfluxDB token belong in the environment, and the
// file itself should be mode 0600.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//		return fmt.Errorf("loading config: %w", err)
//	}
package config
