// Package logging installs the process-global zerolog logger the CLI writes
// through. Diagnostics go to stderr so command output on stdout stays
// machine-readable.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger. An unknown level falls back to info.
// Pretty switches from JSON lines to a human-oriented console format.
func Setup(level string, pretty bool) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	logger := zerolog.New(os.Stderr)
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}
	log.Logger = logger.With().Timestamp().Logger()
}
