package logger

import (
	"time"

	"go.uber.org/zap"
)

// Field represents a structured log field.
type Field = zap.Field

// String constructs a field with a string value.
func String(key string, val string) Field {
	return zap.String(key, val)
}

// Int constructs a field with an integer value.
func Int(key string, val int) Field {
	return zap.Int(key, val)
}

// Bool constructs a field with a boolean value.
func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

// Duration constructs a field with a time.Duration value.
func Duration(key string, val time.Duration) Field {
	return zap.Duration(key, val)
}

// Time constructs a field with a time.Time value.
func Time(key string, val time.Time) Field {
	return zap.Time(key, val)
}

// Error constructs a field with an error value.
func Error(err error) Field {
	return zap.Error(err)
}

// Component identifies the log source.
func Component(name string) Field {
	return String("component", name)
}

// RequestID constructs a request_id field.
func RequestID(id string) Field {
	return String("request_id", id)
}

// Status constructs an HTTP status code field.
func Status(code int) Field {
	return Int("status", code)
}

// Attempt constructs a retry attempt field.
func Attempt(n int) Field {
	return Int("attempt", n)
}
