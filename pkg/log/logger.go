package log

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the root logger. level is a logrus level name and format is
// "text" or "json". Unknown values fall back to info and text; the returned
// warnings say which.
func NewLogger(level, format string, out io.Writer) (*logrus.Logger, []string) {
	var warnings []string
	logger := logrus.New()
	logger.SetOutput(out)

	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	default:
		warnings = append(warnings, "unknown log format '"+format+"', using text")
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	}

	logger.SetLevel(logrus.InfoLevel)
	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			warnings = append(warnings, "invalid log level '"+level+"', using info")
		} else {
			logger.SetLevel(parsed)
		}
	}
	return logger, warnings
}
