// Package logging wires slog into the node: every subsystem logs
// through a named module logger whose level can be tuned separately,
// and records fan out to stdout, the systemd journal, and an
// in-memory ring buffer the diagnostics API serves.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text", // or "json"
//		Modules: map[string]string{
//			"capture": "debug",
//			"control": "warn",
//		},
//	})
//
// then take a logger per module:
//
//	logger := logging.GetLogger("capture")
//	logger.Info("Worker pool started", "workers", 4)
//
// Loggers may be created before Initialize; they are rebuilt when the
// configuration arrives. Levels can also be changed while the node
// runs, either through SetModuleLevel or the diagnostics API.
//
// In the daemon the module levels come from the [logging] table of the
// config file, one key per module:
//
//	[logging]
//	level = "info"
//	format = "text"
//	capture = "debug"
//	control = "warn"
//
// On a field unit the journal is usually the only sink. Useful
// queries:
//
//	journalctl -t arducam-node -f
//	journalctl -t arducam-node -p err
//	journalctl -t arducam-node MODULE=capture
package logging
