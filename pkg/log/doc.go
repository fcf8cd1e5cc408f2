// Package log is the structured logger used by the broker, the lognode and
// the CLI.
//
// A Logger takes a message and typed Fields. Records pass through log/slog
// into a Formatter (text or JSON) and then to every configured Output.
// Values under DefaultRedactKeys, and any key given to WithRedaction, are
// written as "[REDACTED]".
//
//	l := log.NewLogger(log.WithFormatter(&log.TextFormatter{}))
//	l = l.With(log.Component("broker"))
//	l.Info("connection open", log.Str(log.ConnIDKey, id), log.Str(log.TenantKey, "demo"))
//
// Connection-scoped values travel on the context: NewContext attaches them
// and Logger.WithContext reads them back.
//
// ApplyConfig builds a logger from a Config with level, format, outputs
// (console, file:<path>, null), redaction and sampling. RedirectStdLog and
// ToStdLogger route standard library loggers, such as http.Server's
// ErrorLog, into the same pipeline.
package log
