package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

// LogrusAdapter lets watermill log through logrus
type LogrusAdapter struct {
	entry *logrus.Entry
}

// NewLogrusAdapter wraps a logrus logger for watermill
func NewLogrusAdapter(logger logrus.FieldLogger) watermill.LoggerAdapter {
	return &LogrusAdapter{entry: logger.WithField("component", "watermill")}
}

// Error logs msg and err at error level
func (l *LogrusAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.with(fields).WithError(err).Error(msg)
}

// Info logs at info level
func (l *LogrusAdapter) Info(msg string, fields watermill.LogFields) {
	l.with(fields).Info(msg)
}

// Debug logs at debug level
func (l *LogrusAdapter) Debug(msg string, fields watermill.LogFields) {
	l.with(fields).Debug(msg)
}

// Trace logs at trace level
func (l *LogrusAdapter) Trace(msg string, fields watermill.LogFields) {
	l.with(fields).Trace(msg)
}

// With returns an adapter that adds fields to every entry
func (l *LogrusAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LogrusAdapter{entry: l.with(fields)}
}

func (l *LogrusAdapter) with(fields watermill.LogFields) *logrus.Entry {
	return l.entry.WithFields(logrus.Fields(fields))
}
