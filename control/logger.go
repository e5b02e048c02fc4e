// control/logger.go
// Author: momentics <momentics@gmail.com>
//
// Process-wide zerolog construction, honoring the LOG_LEVEL tunable
// (spec §6 "Environment / configuration").

package control

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the console-writer logger every cmd/ entry point
// and package in this module derives its component logger from via
// log.With().Str("component", ...).Logger().
func NewLogger(levelName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()
}
