// Package log provides the leveled logging interface used across educhat.
//
// Every service (index store, chain cache, orchestrator, stores) accepts a
// Logger in its constructor instead of reaching for a package-level default.
// Two implementations are provided:
//
//   - DefaultLogger: writes through the standard library log package.
//   - GologLogger: wraps github.com/kataras/golog and is what the educhat
//     binary uses.
//
// Levels, in order of increasing severity:
//
//   - LogLevelDebug
//   - LogLevelInfo
//   - LogLevelWarn
//   - LogLevelError
//   - LogLevelNone (disables output)
//
// # Usage
//
//	logger := log.New(log.LogLevelDebug, os.Stderr)
//	indexLog := log.WithComponent(logger, "index")
//	indexLog.Info("built %s: %d chunks", docID, n)
package log
