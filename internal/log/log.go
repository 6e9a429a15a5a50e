// Package log provides the process-wide structured logger shared by every
// MCMOT binary, in the shape the rest of the ecosystem expects it.
package log

import (
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// Logger is the package-level logger every component logs through.
// Components never construct their own logger; they log through this one
// (optionally narrowed with log.With) so a single -log-level flag governs
// the whole worker.
var Logger = newDefaultLogger()

func newDefaultLogger() log.Logger {
	l := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	l = log.With(l, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	return l
}

// SetLevel filters Logger to the given level string (debug, info, warn,
// error). An unrecognized level leaves the logger at info.
func SetLevel(lvl string) {
	var opt level.Option
	switch lvl {
	case "debug":
		opt = level.AllowDebug()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		opt = level.AllowInfo()
	}
	Logger = level.NewFilter(newDefaultLogger(), opt)
}

// With returns a logger with the given key/value pairs appended to every
// line, e.g. log.With("stage", "capture", "camera_id", camID).
func With(keyvals ...interface{}) log.Logger {
	return log.With(Logger, keyvals...)
}
