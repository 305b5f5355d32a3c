// Package log records protocol events of the accessory link.
//
// It is separate from operational logging (slog): where slog carries
// human-oriented messages, this package captures a machine-readable trace
// of link frames, decoded messages, authentication outcomes and credential
// transitions for later inspection with solarlink-log.
//
//	// During development: mirror events to the console
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// In production: append to a binary trace
//	fl, _ := log.NewFileLogger("/var/lib/solarlink/link.slog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// Events never carry secrets, signatures or decrypted command payloads.
// Trace files are a plain sequence of CBOR encoded events.
package log
