// Package util provides small bootstrap helpers shared by the daemon and
// maintenance binaries.
package util

import (
	"os"

	"github.com/rs/zerolog"
)

// InitLogger returns a zerolog logger: pretty console output when stdout
// is a terminal, structured JSON otherwise. service tags every record so
// daemon and maintenance-utility logs are distinguishable when shipped to
// the same sink.
func InitLogger(service string) *zerolog.Logger {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var logger zerolog.Logger
	if isTerminal() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().
			Timestamp().
			Str("service", service).
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Str("service", service).
			Logger()
	}

	return &logger
}

func isTerminal() bool {
	fileInfo, _ := os.Stdout.Stat()
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
