package log

import (
	"fmt"
	"time"
)

// Logger is the structured logger every swarmcoord component writes to.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is one key/value pair attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

// Field constructors.
func String(key, value string) Field             { return Field{Key: key, Value: value} }
func Strings(key string, value []string) Field   { return Field{Key: key, Value: value} }
func Int(key string, value int) Field            { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field          { return Field{Key: key, Value: value} }
func Duration(key string, v time.Duration) Field { return Field{Key: key, Value: v} }
func Time(key string, value time.Time) Field     { return Field{Key: key, Value: value} }
func Any(key string, value interface{}) Field    { return Field{Key: key, Value: value} }

// Stringer logs v.String(), so phases and states show by name.
func Stringer(key string, v fmt.Stringer) Field { return Field{Key: key, Value: v} }

// Err logs err under "error".
func Err(err error) Field { return Field{Key: "error", Value: err} }

// Component tags every line from a Logger with the subsystem it came from.
func Component(name string) Field { return String("component", name) }

// Discard drops every message. It is the default when no logger is given.
var Discard Logger = discard{}

type discard struct{}

func (discard) Debug(string, ...Field) {}
func (discard) Info(string, ...Field)  {}
func (discard) Warn(string, ...Field)  {}
func (discard) Error(string, ...Field) {}

// With returns a Logger that adds fields to every line. A zerolog adapter
// binds them once into its context; other loggers get them prepended per
// call.
func With(l Logger, fields ...Field) Logger {
	switch v := l.(type) {
	case nil:
		return Discard
	case discard:
		return v
	case *ZerologAdapter:
		return v.With(fields...)
	}
	if len(fields) == 0 {
		return l
	}
	return &withFields{next: l, fields: append([]Field(nil), fields...)}
}

type withFields struct {
	next   Logger
	fields []Field
}

func (w *withFields) merge(fields []Field) []Field {
	out := make([]Field, 0, len(w.fields)+len(fields))
	return append(append(out, w.fields...), fields...)
}

func (w *withFields) Debug(msg string, fields ...Field) { w.next.Debug(msg, w.merge(fields)...) }
func (w *withFields) Info(msg string, fields ...Field)  { w.next.Info(msg, w.merge(fields)...) }
func (w *withFields) Warn(msg string, fields ...Field)  { w.next.Warn(msg, w.merge(fields)...) }
func (w *withFields) Error(msg string, fields ...Field) { w.next.Error(msg, w.merge(fields)...) }
