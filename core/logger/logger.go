// Package logger declares the logging contract the fleet engine depends on.
// The zerolog adapter lives in infra/logger.
package logger

// Fields are structured key/value pairs attached to a log line.
type Fields = map[string]any

// Logger is the leveled logger injected into engine components. The *f
// methods format like fmt.Sprintf; Debugw attaches fields to msg.
type Logger interface {
	Debugf(format string, args ...any)
	Debugw(msg string, fields Fields)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
