// Package serial opens the link to a prescaler MCU and lists candidate
// ports.
package serial

import (
	"io"
	"time"
)

// Port is a serial link. Besides the native port, an in-process simulated
// MCU satisfies it.
type Port interface {
	io.ReadWriteCloser

	// Flush discards unread input and unsent output.
	Flush() error
}

// Config holds serial port settings.
type Config struct {
	// Device path, e.g. "/dev/ttyACM0" or "COM3".
	Device string

	// Baud rate. USB CDC links ignore it.
	Baud int

	// ReadTimeout bounds a single Read; 0 blocks.
	ReadTimeout time.Duration
}

// DefaultBaud is the rate used for UART-attached MCUs.
const DefaultBaud = 250000

func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100 * time.Millisecond,
	}
}
