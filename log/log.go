// Package log wraps zerolog behind a single package-level logger, mirroring
// the teacher's package-level `logger` variable used across trader/decision
// call sites (logger.Info, logger.Infof, logger.Warn, logger.Error).
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	lgr = zerolog.New(defaultWriter(os.Stderr, true)).With().Timestamp().Logger()
)

func defaultWriter(w io.Writer, pretty bool) io.Writer {
	if pretty {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return w
}

// Configure switches between human-readable console output (development)
// and structured JSON (production), and sets the minimum level.
func Configure(jsonOutput bool, level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	zerolog.SetGlobalLevel(level)
	if jsonOutput {
		lgr = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	lgr = zerolog.New(defaultWriter(os.Stderr, true)).With().Timestamp().Logger()
}

// L returns the current global logger, matching the teacher's pattern of a
// package-level accessor (`logger.Info(...)`) rather than threading a
// *zerolog.Logger through every function signature.
func L() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &lgr
}

// Component returns a child logger tagged with a "component" field, used at
// the top of each stage (e.g. log.Component("news")).
func Component(name string) zerolog.Logger {
	return L().With().Str("component", name).Logger()
}
