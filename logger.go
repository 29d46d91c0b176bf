package dx12

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the package logger.
var loggerPtr atomic.Pointer[slog.Logger]

// followers are the live devices created without WithLogger. They receive
// the package logger whenever it changes.
var (
	followersMu sync.Mutex
	followers   = make(map[*Device]struct{})
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the package logger. By default dx12 produces no log
// output. Devices created without WithLogger, and their backend devices,
// follow the package logger.
//
// Pass nil to restore the silent default.
//
// Log levels used by dx12:
//   - [slog.LevelDebug]: heap and resource creation, barriers
//   - [slog.LevelInfo]: adapter selection
//   - [slog.LevelWarn]: release failures
//
// Example:
//
//	dx12.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	followersMu.Lock()
	defer followersMu.Unlock()
	for d := range followers {
		propagateLogger(d.native, l)
	}
}

// Logger returns the package logger. It is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by backend devices that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

func propagateLogger(native any, l *slog.Logger) {
	if ls, ok := native.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

func follow(d *Device) {
	followersMu.Lock()
	followers[d] = struct{}{}
	followersMu.Unlock()
	propagateLogger(d.native, Logger())
}

func unfollow(d *Device) {
	followersMu.Lock()
	delete(followers, d)
	followersMu.Unlock()
}
