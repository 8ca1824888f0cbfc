// Package logging provides structured logging for Gray Logic MIDI.
//
// It wraps log/slog: JSON or text output, a level filter, and the service
// and version attributes on every entry. At debug level entries also carry
// their source location.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr or a file path
//
// A *Logger satisfies the small Logger interfaces declared by the device,
// bridge and journal packages, so it can be handed to them directly:
//
//	log := logging.New(cfg.Logging, version)
//	defer log.Close()
//	dev.SetLogger(log.Component("device"))
//
// MIDI payloads are logged with Hex, which formats only when the entry is
// written:
//
//	log.Debug("MIDI sent", "port", name, "data", logging.Hex(payload))
//
// Never log credentials (MQTT password, InfluxDB token).
package logging
