package log

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l Level) String() string {
	if l < DebugLevel || l > FatalLevel {
		return "UNKNOWN"
	}
	return levelNames[l]
}

type Fields map[string]interface{}

// Keys shared across the broker. A connection logger carries conn, tenant
// and role; subscription runners add subscription and channel.
const (
	ConnIDKey       = "conn"
	TenantKey       = "tenant"
	RoleKey         = "role"
	SubscriptionKey = "subscription"
	ChannelKey      = "channel"
	ComponentKey    = "component"
)

// DefaultRedactKeys hold role secrets and the challenge hashes derived from
// them; every logger masks them.
var DefaultRedactKeys = []string{"secret", "hash"}

type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
	Caller    string
	Error     error
}

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Fatal logs, flushes outputs and exits the process.
	Fatal(msg string, fields ...Field)

	// The f variants take alternating key, value pairs.
	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})
	Fatalf(msg string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger
	With(fields ...Field) Logger
	// WithContext adds the fields attached to ctx by NewContext.
	WithContext(ctx context.Context) Logger
	WithComponent(component string) Logger

	SetLevel(level Level)
	GetLevel() Level
}

type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

type Output interface {
	Write(entry *Entry, formattedEntry []byte) error
	Close() error
}

type LoggerOption func(*BaseLogger)

// BaseLogger is the Logger returned by NewLogger. Children made with With
// share the level, formatter and outputs of their parent.
type BaseLogger struct {
	mu         *sync.RWMutex
	level      *Level
	fields     Fields
	formatter  Formatter
	outputs    []Output
	slogLogger *slog.Logger

	redactKeys []string
	sampling   *[2]int
}

// NewLogger builds a logger writing JSON to the console unless options say
// otherwise.
func NewLogger(options ...LoggerOption) Logger {
	lvl := InfoLevel
	l := &BaseLogger{
		mu:        &sync.RWMutex{},
		level:     &lvl,
		fields:    Fields{},
		formatter: &JSONFormatter{},
	}
	for _, opt := range options {
		opt(l)
	}
	if len(l.outputs) == 0 {
		l.outputs = []Output{NewConsoleOutput()}
	}

	h := &bridgeHandler{
		logger: l,
		redact: redactSet(append(append([]string(nil), DefaultRedactKeys...), l.redactKeys...)),
	}
	if l.sampling != nil {
		h.sampler = newSampler(l.sampling[0], l.sampling[1])
	}
	l.slogLogger = slog.New(h)
	return l
}

func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) { *l.level = level }
}

func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) { l.formatter = formatter }
}

// WithOutput adds an output. Several outputs each receive every entry.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) { l.outputs = append(l.outputs, output) }
}

// WithRedaction masks the values of keys, in addition to DefaultRedactKeys.
func WithRedaction(keys ...string) LoggerOption {
	return func(l *BaseLogger) { l.redactKeys = append(l.redactKeys, keys...) }
}

// WithSampling keeps the first initial records sharing a level and message,
// then one in every thereafter. A thereafter of zero disables sampling.
func WithSampling(initial, thereafter int) LoggerOption {
	return func(l *BaseLogger) {
		if thereafter <= 0 {
			l.sampling = nil
			return
		}
		l.sampling = &[2]int{initial, thereafter}
	}
}
