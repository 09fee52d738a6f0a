package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var base *logrus.Logger

// Init builds the process logger. Development mode logs colored text, everything
// else logs JSON. An empty level falls back to LOG_LEVEL, then to info/debug.
func Init(level string, development bool) *logrus.Logger {
	log := logrus.New()

	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		level = "info"
		if development {
			level = "debug"
		}
	}

	if parsed, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		log.SetLevel(parsed)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithField("invalid_level", level).Warn("Invalid LOG_LEVEL, using INFO")
	}

	if development && strings.ToLower(os.Getenv("LOG_FORMAT")) != "json" {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	log.SetOutput(os.Stdout)
	base = log
	return log
}

// Get returns the process logger, initializing a default one if needed
func Get() *logrus.Logger {
	if base == nil {
		return Init("info", false)
	}
	return base
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// WithComponent tags entries with the emitting component
func WithComponent(log logrus.FieldLogger, component string) *logrus.Entry {
	if log == nil {
		log = Get()
	}
	return log.WithField("component", component)
}

// WithGame tags entries with a component and the game they concern
func WithGame(log logrus.FieldLogger, component, gameID string) *logrus.Entry {
	if log == nil {
		log = Get()
	}
	return log.WithFields(logrus.Fields{
		"component": component,
		"game_id":   gameID,
	})
}
