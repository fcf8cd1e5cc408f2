package log

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

// Fatal logs at FatalLevel and exits the process.
func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields)
	l.closeOutputs()
	os.Exit(1)
}

func (l *BaseLogger) Debugf(msg string, args ...interface{}) { l.logAttrs(DebugLevel, msg, argsToAttrs(args)) }
func (l *BaseLogger) Infof(msg string, args ...interface{})  { l.logAttrs(InfoLevel, msg, argsToAttrs(args)) }
func (l *BaseLogger) Warnf(msg string, args ...interface{})  { l.logAttrs(WarnLevel, msg, argsToAttrs(args)) }
func (l *BaseLogger) Errorf(msg string, args ...interface{}) { l.logAttrs(ErrorLevel, msg, argsToAttrs(args)) }

func (l *BaseLogger) Fatalf(msg string, args ...interface{}) {
	l.logAttrs(FatalLevel, msg, argsToAttrs(args))
	l.closeOutputs()
	os.Exit(1)
}

func (l *BaseLogger) WithField(key string, value interface{}) Logger {
	return l.With(F(key, value))
}

func (l *BaseLogger) WithFields(fields Fields) Logger {
	return l.withAttrs(fields, fieldAttrs(fields, nil))
}

func (l *BaseLogger) WithError(err error) Logger {
	return l.With(Err(err))
}

func (l *BaseLogger) With(fields ...Field) Logger {
	m := make(Fields, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return l.withAttrs(m, fieldAttrs(nil, fields))
}

func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	fields := ContextExtractor(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.WithFields(fields)
}

func (l *BaseLogger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

func (l *BaseLogger) SetLevel(level Level) {
	l.mu.Lock()
	*l.level = level
	l.mu.Unlock()
}

func (l *BaseLogger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return *l.level
}

// withAttrs returns a child logger sharing level, formatter and outputs.
func (l *BaseLogger) withAttrs(fields Fields, attrs []slog.Attr) Logger {
	if len(attrs) == 0 {
		return l
	}
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	child := *l
	child.fields = merged
	child.slogLogger = slog.New(l.slogLogger.Handler().WithAttrs(attrs))
	return &child
}

func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	l.logAttrs(level, msg, fieldAttrs(nil, fields))
}

func (l *BaseLogger) logAttrs(level Level, msg string, attrs []slog.Attr) {
	if l.GetLevel() > level {
		return
	}
	h := l.slogLogger.Handler()
	var pcs [1]uintptr
	// skip runtime.Callers, logAttrs, log and the exported method
	runtime.Callers(4, pcs[:])
	r := slog.NewRecord(time.Now(), toSlogLevel(level), msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = h.Handle(context.Background(), r)
}

func (l *BaseLogger) closeOutputs() {
	for _, out := range l.outputs {
		_ = out.Close()
	}
}
