package logger

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Logger is the logging interface used throughout the cedar library.
// It decouples the library packages from the concrete logging backend so
// embedding applications can plug in their own implementation or silence
// the store entirely.
type Logger interface {
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}

// make sure logrusLogger implements the Logger interface.
var _ Logger = (*logrusLogger)(nil)

// logrusLogger is the default Logger implementation backed by logrus.
// Every message is tagged with the store name it belongs to.
type logrusLogger struct {
	std  *log.Logger
	name string
}

func (l *logrusLogger) Info(args ...interface{}) {
	l.std.WithField("store", l.name).Info(args...)
}

func (l *logrusLogger) Infof(format string, args ...interface{}) {
	l.std.WithField("store", l.name).Infof(format, args...)
}

func (l *logrusLogger) Debug(args ...interface{}) {
	l.std.WithField("store", l.name).Debug(args...)
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) {
	l.std.WithField("store", l.name).Debugf(format, args...)
}

func (l *logrusLogger) Warn(args ...interface{}) {
	l.std.WithField("store", l.name).Warn(args...)
}

func (l *logrusLogger) Warnf(format string, args ...interface{}) {
	l.std.WithField("store", l.name).Warnf(format, args...)
}

func (l *logrusLogger) Error(args ...interface{}) {
	l.std.WithField("store", l.name).Error(args...)
}

func (l *logrusLogger) Errorf(format string, args ...interface{}) {
	l.std.WithField("store", l.name).Errorf(format, args...)
}

// make sure suppressedLogger implements the Logger interface.
var _ Logger = (*suppressedLogger)(nil)

// suppressedLogger discards all messages.
type suppressedLogger struct{}

func (l *suppressedLogger) Info(args ...interface{})                  {}
func (l *suppressedLogger) Infof(format string, args ...interface{})  {}
func (l *suppressedLogger) Debug(args ...interface{})                 {}
func (l *suppressedLogger) Debugf(format string, args ...interface{}) {}
func (l *suppressedLogger) Warn(args ...interface{})                  {}
func (l *suppressedLogger) Warnf(format string, args ...interface{})  {}
func (l *suppressedLogger) Error(args ...interface{})                 {}
func (l *suppressedLogger) Errorf(format string, args ...interface{}) {}

// New creates a logger for the store with the given name.
// Debug level logging is enabled with debugLogs.
func New(name string, debugLogs bool) Logger {
	l := log.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(log.InfoLevel)

	if debugLogs {
		l.SetLevel(log.DebugLevel)
	}

	l.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		PadLevelText:    true,
	})

	return &logrusLogger{
		std:  l,
		name: name,
	}
}

// Suppressed returns a logger that discards everything. It is used in tests
// and by applications that handle diagnostics themselves.
func Suppressed() Logger {
	return &suppressedLogger{}
}
