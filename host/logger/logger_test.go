package logger

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	flags := log.Flags()
	log.SetFlags(0)
	SetOutput(&buf)
	t.Cleanup(func() {
		log.SetFlags(flags)
		SetOutput(log.Writer())
		Quiet, Verbose = false, false
	})
	return &buf
}

func TestInfoQuiet(t *testing.T) {
	buf := capture(t)

	Info("clock %d", 16000000)
	Quiet = true
	Info("hidden")
	Error("failed: %s", "boom")

	got := buf.String()
	if !strings.Contains(got, "prescaler: clock 16000000") {
		t.Errorf("Missing info line: %q", got)
	}
	if strings.Contains(got, "hidden") {
		t.Errorf("Quiet did not suppress Info: %q", got)
	}
	if !strings.Contains(got, "prescaler: failed: boom") {
		t.Errorf("Missing error line: %q", got)
	}
}

func TestDebugVerbose(t *testing.T) {
	buf := capture(t)

	DebugLine("prescale=6 count=250")
	if buf.Len() != 0 {
		t.Errorf("Debug written without Verbose: %q", buf.String())
	}

	Verbose = true
	DebugLine("prescale=6 count=250")
	if !strings.Contains(buf.String(), "prescaler: debug: prescale=6 count=250") {
		t.Errorf("Missing debug line: %q", buf.String())
	}
}
