package camera

import (
	"io"
	"log"
	"sync/atomic"
)

var (
	opsLogger   atomic.Pointer[log.Logger]
	diagLogger  atomic.Pointer[log.Logger]
	traceLogger atomic.Pointer[log.Logger]
)

// SetLogWriters configures the three logging streams for the camera package.
// Pass nil for any writer to disable that stream. Safe to call while a
// capture goroutine is running.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger.Store(newLogger("[camera] ", ops))
	diagLogger.Store(newLogger("[camera] ", diag))
	traceLogger.Store(newLogger("[camera] ", trace))
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// opsf logs to the ops stream (actionable warnings, errors, leaked buffers).
func opsf(format string, args ...interface{}) {
	if l := opsLogger.Load(); l != nil {
		l.Printf(format, args...)
	}
}

// diagf logs to the diag stream (lifecycle, configuration changes).
func diagf(format string, args ...interface{}) {
	if l := diagLogger.Load(); l != nil {
		l.Printf(format, args...)
	}
}

// tracef logs to the trace stream (per-frame telemetry).
func tracef(format string, args ...interface{}) {
	if l := traceLogger.Load(); l != nil {
		l.Printf(format, args...)
	}
}
