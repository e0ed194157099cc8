// Package logging builds the slog loggers used across the server.
//
// Every entry carries service and version fields; Component adds a
// component field so SSDP, GENA and registry output can be filtered apart:
//
//	log := logging.New(cfg.Logging, version)
//	log.Component("ssdp").Info("announcing", "uuid", id)
//
// Output is JSON unless logging.format is "text", and goes to stdout,
// stderr or logging.file.path.
package logging
