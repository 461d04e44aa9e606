// Package logging provides structured, subsystem-tagged logging built on
// log/slog, used throughout the proxy for operational logs and security
// audit events.
//
// Call Init once at process startup with the configured level and output
// writer, then use Debug/Info/Warn/Error with a subsystem name:
//
//	logging.Init(logging.ParseLevel(cfg.LogLevel), logFile)
//	logging.Info("Upstream", "connected to %s", name)
//
// Security-relevant events (OAuth grant/deny, token revocation, upstream
// AwaitingOAuth transitions) go through Audit instead, which always logs at
// INFO with an [AUDIT] prefix so log aggregation can select on the prefix.
// Like any INFO record, it is dropped when the configured level is WARN or
// ERROR.
package logging
