package core

// DebugWriter writes one line of debug output.
type DebugWriter func(string)

var (
	// debugPrintln is replaced by platform code (UART, USB, log).
	debugPrintln DebugWriter = func(string) {}

	// debugEnabled is off by default; debug lines cost a string build.
	debugEnabled bool
)

// SetDebugWriter redirects debug output.
func SetDebugWriter(writer DebugWriter) {
	if writer == nil {
		writer = func(string) {}
	}
	debugPrintln = writer
}

func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes msg when debug output is enabled.
func DebugPrintln(msg string) {
	if debugEnabled {
		debugPrintln(msg)
	}
}

// ScaleTrace routes a scaling.Calculator step trace to the debug output.
func ScaleTrace(msg string) {
	DebugPrintln("[scale] " + msg)
}
