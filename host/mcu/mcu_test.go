package mcu

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"prescaler/host/sim"
	"prescaler/protocol"
	"prescaler/scaling"
	"prescaler/specs"
)

func newSession(t *testing.T) (*MCU, *sim.MCU) {
	t.Helper()

	board, err := sim.New(16000000)
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	m := NewMCU()
	m.Attach(board)
	t.Cleanup(func() { m.Close() })

	if err := m.RetrieveDictionary(); err != nil {
		t.Fatalf("RetrieveDictionary: %v", err)
	}
	return m, board
}

func wantTimerError(t *testing.T, err error, code uint8) {
	t.Helper()
	var te *TimerError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TimerError code %d, got %v", code, err)
	}
	if te.Code != code {
		t.Errorf("TimerError code = %d (%s), want %d", te.Code, te, code)
	}
}

func TestRetrieveDictionary(t *testing.T) {
	m, _ := newSession(t)

	hz, err := m.ClockFreq()
	if err != nil || hz != 16000000 {
		t.Errorf("ClockFreq() = %d, %v", hz, err)
	}
	if got := m.Timers(); !reflect.DeepEqual(got, specs.Names()) {
		t.Errorf("Timers() = %v, want %v", got, specs.Names())
	}
	if id, ok := m.CommandID(protocol.CmdIdentify); !ok || id != identifyCmdID {
		t.Errorf("identify id = %d, %v", id, ok)
	}
	for _, name := range []string{protocol.CmdSetTimerFrequency, protocol.CmdSetTimerTick, protocol.CmdQueryScaledTimer} {
		if _, ok := m.CommandID(name); !ok {
			t.Errorf("Command %s missing from dictionary", name)
		}
	}
	if m.Dictionary().Version != protocol.Version {
		t.Errorf("Version = %q", m.Dictionary().Version)
	}
	if len(m.DictionaryRaw()) <= identifyChunk {
		t.Errorf("Dictionary only %d bytes, expected several chunks", len(m.DictionaryRaw()))
	}
}

func TestTimerSession(t *testing.T) {
	m, board := newSession(t)

	st, err := m.ConfigureTimer(1, specs.NameCounter2)
	if err != nil {
		t.Fatalf("ConfigureTimer: %v", err)
	}
	if st.Running || st.Frequency != 0 {
		t.Errorf("Fresh timer state = %v", st)
	}

	st, err = m.SetTimerFrequency(1, 1000)
	if err != nil {
		t.Fatalf("SetTimerFrequency: %v", err)
	}
	want := TimerState{OID: 1, Scale: scaling.ClockScale{PrescaleExponent: 0, CounterLimit: 15999}, Frequency: 1000, Running: true}
	if st != want {
		t.Errorf("SetTimerFrequency(1000) = %v, want %v", st, want)
	}

	board.Advance(time.Second)
	if edges, _ := board.Edges(specs.NameCounter2); edges != 1000 {
		t.Errorf("Edges after 1s = %d, want 1000", edges)
	}

	st, err = m.SetTimerTick(1, 4)
	if err != nil {
		t.Fatalf("SetTimerTick: %v", err)
	}
	if st.Scale != (scaling.ClockScale{PrescaleExponent: 6, CounterLimit: 65535}) || st.Frequency != 4 {
		t.Errorf("SetTimerTick(4) = %v", st)
	}

	st, err = m.SetTimerScale(1, scaling.ClockScale{PrescaleExponent: 3, CounterLimit: 999})
	if err != nil {
		t.Fatalf("SetTimerScale: %v", err)
	}
	if st.Frequency != 2000 {
		t.Errorf("SetTimerScale frequency = %d, want 2000", st.Frequency)
	}

	st, err = m.StopTimer(1)
	if err != nil || st.Running {
		t.Fatalf("StopTimer = %v, %v", st, err)
	}
	before, _ := board.Edges(specs.NameCounter2)
	board.Advance(100 * time.Millisecond)
	if after, _ := board.Edges(specs.NameCounter2); after != before {
		t.Errorf("Stopped timer toggled: %d -> %d", before, after)
	}
}

func TestTimerErrors(t *testing.T) {
	m, _ := newSession(t)

	if _, err := m.ConfigureTimer(1, specs.NameCounter2); err != nil {
		t.Fatalf("ConfigureTimer: %v", err)
	}
	if _, err := m.ConfigureTimer(2, specs.NameCounter1); err != nil {
		t.Fatalf("ConfigureTimer: %v", err)
	}

	_, err := m.SetTimerScale(1, scaling.ClockScale{PrescaleExponent: 4})
	wantTimerError(t, err, protocol.TimerErrMalformed)

	_, err = m.SetTimerFrequency(1, 0)
	wantTimerError(t, err, protocol.TimerErrZeroOperand)

	_, err = m.SetTimerFrequency(2, 1)
	wantTimerError(t, err, protocol.TimerErrUnrepresentable)

	_, err = m.QueryTimer(9)
	wantTimerError(t, err, protocol.TimerErrUnknownOID)

	if _, err := m.ConfigureTimer(3, "counter9"); err == nil {
		t.Error("ConfigureTimer accepted an unknown timer")
	}
}

func TestShutdownAndReset(t *testing.T) {
	m, _ := newSession(t)

	if _, err := m.ConfigureTimer(1, specs.NameCounter3); err != nil {
		t.Fatalf("ConfigureTimer: %v", err)
	}
	if err := m.EmergencyStop(); err != nil {
		t.Fatalf("EmergencyStop: %v", err)
	}

	_, err := m.SetTimerFrequency(1, 1000)
	wantTimerError(t, err, protocol.TimerErrShutdown)

	cfg, err := m.GetConfig()
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if !cfg.IsShutdown {
		t.Errorf("GetConfig() = %+v, want shutdown", cfg)
	}

	if err := m.ConfigReset(); err != nil {
		t.Fatalf("ConfigReset: %v", err)
	}
	_, err = m.QueryTimer(1)
	wantTimerError(t, err, protocol.TimerErrUnknownOID)

	cfg, err = m.GetConfig()
	if err != nil || cfg.IsShutdown {
		t.Errorf("GetConfig() after reset = %+v, %v", cfg, err)
	}
}

func TestNotConnected(t *testing.T) {
	m := NewMCU()
	if err := m.RetrieveDictionary(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("RetrieveDictionary() = %v", err)
	}
	if err := m.Send("get_config"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() = %v", err)
	}
}

func TestIndexByName(t *testing.T) {
	ids := indexByName(map[string]int{
		"identify offset=%u count=%c": 1,
		"get_config":                  2,
	})
	if ids["identify"] != 1 || ids["get_config"] != 2 {
		t.Errorf("indexByName() = %v", ids)
	}
}
