// Package minerlog wires up per-subsystem logging with
// github.com/btcsuite/btclog, the same backend-plus-subsystem-map pattern
// MonteCarloClub-acbc's log package uses.
package minerlog

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"
)

// Logger is the subset of btclog.Logger this module's components use.
type Logger = btclog.Logger

var backend = btclog.NewBackend(os.Stdout)

// subsystems mirrors the tag scheme a Verus miner's C++ logger.hpp uses:
// a short fixed-width prefix per functional area.
var subsystems = map[string]Logger{
	"STRT": backend.Logger("STRT"), // stratum client
	"MINE": backend.Logger("MINE"), // mining engine / workers
	"HASH": backend.Logger("HASH"), // hasher / CLHash internals
	"API ": backend.Logger("API "), // stats HTTP API
	"MAIN": backend.Logger("MAIN"), // cmd/verusminer entry point
}

// Subsystem returns the logger for a named subsystem, defaulting to MAIN
// if the tag is unknown.
func Subsystem(tag string) Logger {
	if l, ok := subsystems[tag]; ok {
		return l
	}
	return subsystems["MAIN"]
}

// SetLevel sets the log level for every subsystem at once, e.g. from a
// --loglevel CLI flag.
func SetLevel(level btclog.Level) {
	for _, l := range subsystems {
		l.SetLevel(level)
	}
}

// SetOutput redirects the shared backend's writer, mainly for tests.
func SetOutput(w io.Writer) {
	backend = btclog.NewBackend(w)
	for tag := range subsystems {
		subsystems[tag] = backend.Logger(tag)
	}
}
