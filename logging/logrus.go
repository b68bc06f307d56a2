// Package logging adapts logrus to the store.Logger interface.
package logging

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/getpup/commitstore/store"
)

// Logrus is a store.Logger that forwards to a logrus logger with the
// key/value pairs mapped onto structured fields.
type Logrus struct {
	logger *logrus.Logger
}

var _ store.Logger = (*Logrus)(nil)

// NewLogrus wraps an existing logrus logger. A nil logger gets the logrus
// standard logger.
func NewLogrus(logger *logrus.Logger) *Logrus {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Logrus{logger: logger}
}

// Debug implements store.Logger.
func (l *Logrus) Debug(ctx context.Context, msg string, keyvals ...interface{}) {
	l.logger.WithContext(ctx).WithFields(fields(keyvals)).Debug(msg)
}

// Info implements store.Logger.
func (l *Logrus) Info(ctx context.Context, msg string, keyvals ...interface{}) {
	l.logger.WithContext(ctx).WithFields(fields(keyvals)).Info(msg)
}

// Error implements store.Logger.
func (l *Logrus) Error(ctx context.Context, msg string, keyvals ...interface{}) {
	l.logger.WithContext(ctx).WithFields(fields(keyvals)).Error(msg)
}

// fields pairs up the variadic key/value list. A trailing key without a
// value is kept rather than dropped.
func fields(keyvals []interface{}) logrus.Fields {
	out := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		if i+1 < len(keyvals) {
			out[key] = keyvals[i+1]
		} else {
			out[key] = "(missing)"
		}
	}
	return out
}
