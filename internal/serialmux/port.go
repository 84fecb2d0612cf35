package serialmux

import "io"

// SerialPorter is the part of a serial port the mux uses. go.bug.st/serial
// ports and TestableSerialPort both satisfy it.
type SerialPorter interface {
	io.ReadWriteCloser
}
