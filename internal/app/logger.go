package app

import (
	"strings"

	"github.com/mwhitfield/ledgerline/pkg/logger"
)

// ConfigureLogging initialises the global logger from the logging config,
// defaulting to info-level json output.
func ConfigureLogging(level, format string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}

	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "json"
	}
	return logger.Init(level, format)
}
