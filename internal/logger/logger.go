package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// New creates a new logger instance writing to stdout
func New(level, format string) *logrus.Logger {
	return NewWithOutput(level, format, os.Stdout)
}

// NewWithOutput creates a logger writing to w
func NewWithOutput(level, format string, w io.Writer) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)
	logger.SetOutput(w)

	switch format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}

	return logger
}

// ForQuery returns an entry tagged with the query being processed
func ForQuery(logger *logrus.Logger, queryID, target, identifier string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"query_id":   queryID,
		"target":     target,
		"identifier": identifier,
	})
}

// Discard returns a logger that drops everything, for tests and library callers
func Discard() *logrus.Logger {
	return NewWithOutput("panic", "text", io.Discard)
}
