package observability

import (
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LoggerConfig contains logger configuration
type LoggerConfig struct {
	Level   string // debug, info, warn, error
	Format  string // text or json
	Output  io.Writer
	Service string
	Version string
	// RunID tags every entry of one validation run; generated when empty.
	RunID string
}

// NewLogger creates the process logger and returns it with the base fields
// attached.
func NewLogger(config LoggerConfig) *logrus.Entry {
	logger := logrus.New()

	if config.Output == nil {
		config.Output = os.Stderr
	}
	logger.SetOutput(config.Output)
	logger.SetLevel(LogLevelFromString(config.Level))

	if strings.EqualFold(config.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05",
		})
	}

	if config.Service == "" {
		config.Service = "dashcheck"
	}
	if config.RunID == "" {
		config.RunID = uuid.NewString()
	}

	return logger.WithFields(logrus.Fields{
		"service": config.Service,
		"version": config.Version,
		"run_id":  config.RunID,
	})
}

// LogLevelFromString converts a string to a log level, defaulting to info
func LogLevelFromString(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Discard returns a logger that drops everything. Used by tests and by
// callers that do not care about progress output.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
