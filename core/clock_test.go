package core

import (
	"errors"
	"strings"
	"testing"

	"prescaler/protocol"
	"prescaler/scaling"
	"prescaler/specs"
)

type mockTimerDriver struct {
	applied  map[TimerID]scaling.ClockScale
	stopped  []TimerID
	applyErr error
}

func newMockTimerDriver() *mockTimerDriver {
	return &mockTimerDriver{applied: make(map[TimerID]scaling.ClockScale)}
}

func (m *mockTimerDriver) ApplyScale(timer TimerID, scale scaling.ClockScale) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	m.applied[timer] = scale
	return nil
}

func (m *mockTimerDriver) StopTimer(timer TimerID) error {
	m.stopped = append(m.stopped, timer)
	delete(m.applied, timer)
	return nil
}

// response is a decoded response block: name plus integer arguments.
type response struct {
	name string
	args []uint32
}

// setupClock resets global state and registers the ATmega328 timers against
// a recording transport.
func setupClock(t *testing.T) (*mockTimerDriver, *protocol.ScratchOutput) {
	t.Helper()

	globalRegistry = NewCommandRegistry()
	globalDictionary = NewDictionary(globalRegistry)
	globalState = &FirmwareState{}
	timerSlots = nil
	ResetScaledTimers()

	for _, name := range specs.Names() {
		table, _ := specs.Lookup(name)
		if _, err := RegisterTimerTable(name, table); err != nil {
			t.Fatalf("RegisterTimerTable(%s): %v", name, err)
		}
	}

	InitCoreCommands()
	InitClockCommands(scaling.NewCalculator(16000000))

	driver := newMockTimerDriver()
	SetTimerDriver(driver)

	out := protocol.NewScratchOutput()
	SetGlobalTransport(protocol.NewTransport(out, nil))
	t.Cleanup(func() {
		SetGlobalTransport(nil)
		SetTimerDriver(nil)
	})
	return driver, out
}

// send encodes args and dispatches the named command.
func send(t *testing.T, name string, args ...uint32) {
	t.Helper()

	cmd, ok := globalRegistry.GetCommandByName(name)
	if !ok {
		t.Fatalf("command %s not registered", name)
	}
	scratch := protocol.NewScratchOutput()
	for _, a := range args {
		protocol.EncodeVLQUint(scratch, a)
	}
	data := append([]byte(nil), scratch.Result()...)
	if err := DispatchCommand(cmd.ID, &data); err != nil {
		t.Fatalf("%s failed: %v", name, err)
	}
	if len(data) != 0 {
		t.Errorf("%s left %d argument bytes", name, len(data))
	}
}

// responses decodes and clears everything written to out.
func responses(t *testing.T, out *protocol.ScratchOutput) []response {
	t.Helper()

	var result []response
	buf := out.Result()
	for len(buf) > 0 {
		n := int(buf[protocol.MessagePositionLen])
		payload := buf[protocol.MessageHeaderSize : n-protocol.MessageTrailerSize]
		buf = buf[n:]

		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			t.Fatalf("bad response: %v", err)
		}
		cmd, _ := globalRegistry.GetCommand(uint16(id))
		r := response{name: cmd.Name}
		for len(payload) > 0 {
			v, err := protocol.DecodeVLQUint(&payload)
			if err != nil {
				t.Fatalf("bad argument: %v", err)
			}
			r.args = append(r.args, v)
		}
		result = append(result, r)
	}
	out.Reset()
	return result
}

func expectState(t *testing.T, got []response, oid, prescale, limit, freq, running uint32) {
	t.Helper()
	if len(got) != 1 || got[0].name != protocol.RespScaledTimerState {
		t.Fatalf("Expected one scaled_timer_state, got %+v", got)
	}
	want := []uint32{oid, prescale, limit, freq, running}
	for i, v := range want {
		if got[0].args[i] != v {
			t.Errorf("scaled_timer_state = %v, want %v", got[0].args, want)
			return
		}
	}
}

func expectError(t *testing.T, got []response, oid uint32, code uint8) {
	t.Helper()
	if len(got) != 1 || got[0].name != protocol.RespScaledTimerError {
		t.Fatalf("Expected one scaled_timer_error, got %+v", got)
	}
	if got[0].args[0] != oid || got[0].args[1] != uint32(code) {
		t.Errorf("scaled_timer_error = %v, want [%d %d]", got[0].args, oid, code)
	}
}

func TestSetTimerFrequency(t *testing.T) {
	driver, out := setupClock(t)

	send(t, protocol.CmdConfigScaledTimer, 1, 0)
	send(t, protocol.CmdSetTimerFrequency, 1, 1000)

	expectState(t, responses(t, out), 1, 6, 249, 1000, 1)
	if driver.applied[0] != (scaling.ClockScale{PrescaleExponent: 6, CounterLimit: 249}) {
		t.Errorf("Driver got %+v", driver.applied[0])
	}

	st, ok := GetScaledTimer(1)
	if !ok || !st.Running || st.Frequency != 1000 {
		t.Errorf("Unexpected timer state %+v", st)
	}
}

func TestSetTimerFrequencyUart(t *testing.T) {
	_, out := setupClock(t)

	send(t, protocol.CmdConfigScaledTimer, 2, 3)
	send(t, protocol.CmdSetTimerFrequency, 2, 9600)

	expectState(t, responses(t, out), 2, 3, 207, 9615, 1)
}

func TestSetTimerFrequencyUnrepresentable(t *testing.T) {
	driver, out := setupClock(t)

	send(t, protocol.CmdConfigScaledTimer, 1, 0)
	send(t, protocol.CmdSetTimerFrequency, 1, 48000000)
	expectError(t, responses(t, out), 1, protocol.TimerErrUnrepresentable)

	send(t, protocol.CmdSetTimerFrequency, 1, 0)
	expectError(t, responses(t, out), 1, protocol.TimerErrZeroOperand)

	if len(driver.applied) != 0 {
		t.Errorf("Driver programmed on failure: %v", driver.applied)
	}
}

func TestSetTimerTick(t *testing.T) {
	_, out := setupClock(t)

	send(t, protocol.CmdConfigScaledTimer, 4, 2)
	send(t, protocol.CmdSetTimerTick, 4, 3)

	// 4 us ticks on an 8-bit counter: 250000 Hz / 256.
	expectState(t, responses(t, out), 4, 6, 255, 977, 1)

	// 65539 must not wrap to 3 us.
	send(t, protocol.CmdSetTimerTick, 4, 65539)
	expectError(t, responses(t, out), 4, protocol.TimerErrMalformed)

	send(t, protocol.CmdQueryScaledTimer, 4)
	expectState(t, responses(t, out), 4, 6, 255, 977, 1)
}

func TestSetTimerScale(t *testing.T) {
	driver, out := setupClock(t)

	send(t, protocol.CmdConfigScaledTimer, 1, 1)
	send(t, protocol.CmdSetTimerScale, 1, 0, 15999)
	expectState(t, responses(t, out), 1, 0, 15999, 1000, 1)
	if driver.applied[1].CounterLimit != 15999 {
		t.Errorf("Driver got %+v", driver.applied[1])
	}

	tests := []struct {
		name     string
		prescale uint32
		limit    uint32
	}{
		{"exponent not in table", 5, 100},
		{"exponent out of range", 17, 100},
		{"limit beyond 16 bits", 0, 70000},
	}
	for _, tt := range tests {
		send(t, protocol.CmdSetTimerScale, 1, tt.prescale, tt.limit)
		got := responses(t, out)
		if len(got) != 1 || got[0].name != protocol.RespScaledTimerError || got[0].args[1] != uint32(protocol.TimerErrMalformed) {
			t.Errorf("%s: expected malformed error, got %+v", tt.name, got)
		}
	}
}

func TestSetTimerScaleCounterWidth(t *testing.T) {
	_, out := setupClock(t)

	send(t, protocol.CmdConfigScaledTimer, 1, 0)
	send(t, protocol.CmdSetTimerScale, 1, 6, 256)
	expectError(t, responses(t, out), 1, protocol.TimerErrMalformed)

	send(t, protocol.CmdSetTimerScale, 1, 6, 255)
	expectState(t, responses(t, out), 1, 6, 255, 977, 1)
}

func TestStopAndQueryTimer(t *testing.T) {
	driver, out := setupClock(t)

	send(t, protocol.CmdConfigScaledTimer, 1, 0)
	send(t, protocol.CmdSetTimerFrequency, 1, 1000)
	responses(t, out)

	send(t, protocol.CmdStopScaledTimer, 1)
	expectState(t, responses(t, out), 1, 6, 249, 1000, 0)
	if len(driver.stopped) != 1 || driver.stopped[0] != 0 {
		t.Errorf("Expected timer 0 stopped, got %v", driver.stopped)
	}

	send(t, protocol.CmdQueryScaledTimer, 1)
	expectState(t, responses(t, out), 1, 6, 249, 1000, 0)
}

func TestUnknownOIDAndTimer(t *testing.T) {
	_, out := setupClock(t)

	send(t, protocol.CmdSetTimerFrequency, 9, 1000)
	expectError(t, responses(t, out), 9, protocol.TimerErrUnknownOID)

	send(t, protocol.CmdQueryScaledTimer, 9)
	expectError(t, responses(t, out), 9, protocol.TimerErrUnknownOID)

	send(t, protocol.CmdConfigScaledTimer, 9, 12)
	expectError(t, responses(t, out), 9, protocol.TimerErrUnknownTimer)
}

func TestApplyScaleHardwareError(t *testing.T) {
	driver, out := setupClock(t)
	driver.applyErr = errors.New("timer busy")

	send(t, protocol.CmdConfigScaledTimer, 1, 0)
	send(t, protocol.CmdSetTimerFrequency, 1, 1000)
	expectError(t, responses(t, out), 1, protocol.TimerErrHardware)

	if st, _ := GetScaledTimer(1); st.Running {
		t.Error("Timer marked running after hardware error")
	}
}

func TestEmergencyStop(t *testing.T) {
	driver, out := setupClock(t)

	send(t, protocol.CmdConfigScaledTimer, 1, 0)
	send(t, protocol.CmdConfigScaledTimer, 2, 1)
	send(t, protocol.CmdSetTimerFrequency, 1, 1000)
	send(t, protocol.CmdSetTimerFrequency, 2, 50)
	responses(t, out)

	send(t, "emergency_stop")
	got := responses(t, out)
	if len(got) != 1 || got[0].name != "shutdown" {
		t.Fatalf("Expected shutdown response, got %+v", got)
	}
	if len(driver.stopped) != 2 {
		t.Errorf("Expected both timers stopped, got %v", driver.stopped)
	}

	send(t, protocol.CmdSetTimerFrequency, 1, 1000)
	expectError(t, responses(t, out), 1, protocol.TimerErrShutdown)

	// Stop and query still report state while shut down.
	send(t, protocol.CmdQueryScaledTimer, 1)
	expectState(t, responses(t, out), 1, 6, 249, 1000, 0)
	send(t, protocol.CmdStopScaledTimer, 2)
	expectState(t, responses(t, out), 2, 3, 39999, 50, 0)

	send(t, "config_reset")
	if IsShutdown() {
		t.Error("config_reset did not clear shutdown")
	}
	if _, ok := GetScaledTimer(1); ok {
		t.Error("config_reset kept oid 1")
	}
}

func TestGetConfig(t *testing.T) {
	_, out := setupClock(t)

	send(t, "finalize_config", 0xCAFE)
	send(t, "get_config")

	got := responses(t, out)
	if len(got) != 1 || got[0].name != "config" {
		t.Fatalf("Expected config response, got %+v", got)
	}
	if got[0].args[0] != 1 || got[0].args[1] != 0xCAFE || got[0].args[2] != 0 {
		t.Errorf("Unexpected config %v", got[0].args)
	}
}

func TestRegisterTimerTableRejectsMalformed(t *testing.T) {
	_, err := RegisterTimerTable("bad", scaling.ScalingTable{PrescaleExponents: []uint8{8, 3}, CounterBits: 8})
	if !errors.Is(err, scaling.ErrMalformed) {
		t.Errorf("Expected ErrMalformed, got %v", err)
	}
}

func TestClockDictionary(t *testing.T) {
	setupClock(t)

	dict := string(GetGlobalDictionary().Generate())
	for _, want := range []string{
		`"CLOCK_FREQ":"16000000"`,
		`"set_timer_frequency oid=%c freq=%u"`,
		`"scaled_timer_state oid=%c prescale=%c limit=%hu freq=%u running=%c"`,
		`"timer":{"counter1":0,"counter2":1,"counter3":2,"uart":3,"pio":4}`,
	} {
		if !strings.Contains(dict, want) {
			t.Errorf("Dictionary missing %s\n%s", want, dict)
		}
	}
}

func TestScaleTrace(t *testing.T) {
	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	SetDebugEnabled(true)
	defer func() {
		SetDebugEnabled(false)
		SetDebugWriter(nil)
	}()

	calc := scaling.NewCalculator(16000000, scaling.WithDebugWriter(ScaleTrace))
	if _, err := calc.FindScale(1000, specs.Counter1); err != nil {
		t.Fatalf("FindScale failed: %v", err)
	}
	if len(lines) != 3 || lines[2] != "[scale] prescale=6 scaled_freq=250000 count=250" {
		t.Errorf("Unexpected trace %v", lines)
	}
}
