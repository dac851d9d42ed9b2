// Package logger is the host tools' log output: stdlib log with a fixed
// prefix, a Quiet switch for informational lines and a Verbose switch for
// debug lines.
package logger

import (
	"io"
	"log"
)

const prefix = "prescaler: "

var (
	// Quiet suppresses Info. Error is always written.
	Quiet bool

	// Verbose enables Debug.
	Verbose bool
)

// SetOutput redirects all log output.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	log.Printf(prefix+format, args...)
}

func Error(format string, args ...interface{}) {
	log.Printf(prefix+format, args...)
}

func Debug(format string, args ...interface{}) {
	if !Verbose {
		return
	}
	log.Printf(prefix+"debug: "+format, args...)
}

// DebugLine writes a preformatted debug line. It fits scaling.DebugWriter
// and core.DebugWriter.
func DebugLine(msg string) {
	Debug("%s", msg)
}
