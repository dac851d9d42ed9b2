package sim

import (
	"io"
	"reflect"
	"testing"
	"time"

	"prescaler/specs"
)

func TestNewFixesBaseClock(t *testing.T) {
	m, err := New(16000000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	if _, err := New(8000000); err == nil {
		t.Error("New accepted a second base clock")
	}
	if got := Timers(); !reflect.DeepEqual(got, specs.Names()) {
		t.Errorf("Timers() = %v, want %v", got, specs.Names())
	}
}

func TestEdgesIdle(t *testing.T) {
	m, err := New(16000000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	m.Advance(10 * time.Millisecond)
	for _, name := range Timers() {
		if n, err := m.Edges(name); err != nil || n != 0 {
			t.Errorf("Edges(%s) = %d, %v on an idle board", name, n, err)
		}
	}
	if _, err := m.Edges("counter9"); err == nil {
		t.Error("Edges accepted an unknown timer")
	}
}

func TestClosedPort(t *testing.T) {
	m, err := New(16000000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Close()

	if _, err := m.Write([]byte{0x7E}); err != io.ErrClosedPipe {
		t.Errorf("Write after Close = %v", err)
	}
	if _, err := m.Read(make([]byte, 8)); err != io.EOF {
		t.Errorf("Read after Close = %v", err)
	}
}

func TestGarbageIsNakked(t *testing.T) {
	m, err := New(16000000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	// A frame with a bad CRC makes the firmware resync and answer.
	if _, err := m.Write([]byte{0x05, 0x10, 0x00, 0x00, 0x7E}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	m.mu.Lock()
	pending := len(m.pending)
	m.mu.Unlock()
	if pending == 0 {
		t.Error("Expected a NAK for a corrupt block")
	}
}
