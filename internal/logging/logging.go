// Package logging configures the logrus logger shared by the CLI and the engine.
package logging

import (
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// DefaultLevel is used when no level is given.
const DefaultLevel = "info"

// New returns a text logger writing to out at the given level.
// An empty level means DefaultLevel.
func New(out io.Writer, level string, noColor bool) (*log.Logger, error) {
	if level == "" {
		level = DefaultLevel
	}

	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := log.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
		DisableColors:   noColor,
	})

	return logger, nil
}
