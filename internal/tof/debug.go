package tof

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

// SetLogWriters configures the three logging streams for the tof package.
// Pass nil for any writer to disable that stream. Safe to call while a
// capture goroutine is running.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger.Store(newLogger("[tof] ", ops))
	diagLogger.Store(newLogger("[tof] ", diag))
	traceLogger.Store(newLogger("[tof] ", trace))
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// opsf logs to the ops stream (resets, rejected settings).
func opsf(format string, args ...interface{}) {
	if l := opsLogger.Load(); l != nil {
		l.Printf(format, args...)
	}
}

// diagf logs to the diag stream (initialisation, latched conversion settings).
func diagf(format string, args ...interface{}) {
	if l := diagLogger.Load(); l != nil {
		l.Printf(format, args...)
	}
}

// tracef logs to the trace stream (simulated register side effects).
func tracef(format string, args ...interface{}) {
	if l := traceLogger.Load(); l != nil {
		l.Printf(format, args...)
	}
}
