package mcu

import (
	"fmt"
	"time"

	"prescaler/protocol"
	"prescaler/scaling"
)

// TimerState is a scaled_timer_state report.
type TimerState struct {
	OID       uint8
	Scale     scaling.ClockScale
	Frequency uint32
	Running   bool
}

func (s TimerState) String() string {
	run := "stopped"
	if s.Running {
		run = "running"
	}
	return fmt.Sprintf("oid=%d prescale=%d limit=%d freq=%dHz %s",
		s.OID, s.Scale.PrescaleExponent, s.Scale.CounterLimit, s.Frequency, run)
}

// TimerError is a scaled_timer_error report.
type TimerError struct {
	OID  uint8
	Code uint8
}

func (e *TimerError) Error() string {
	return fmt.Sprintf("timer oid %d: %s", e.OID, protocol.TimerErrorText(e.Code))
}

// ConfigureTimer binds oid to the named hardware timer and returns its
// initial state.
func (m *MCU) ConfigureTimer(oid uint8, timer string) (TimerState, error) {
	enum := m.timerEnum()
	id, ok := enum[timer]
	if !ok {
		return TimerState{}, fmt.Errorf("unknown timer %q", timer)
	}
	m.transport.DrainResponses()
	if err := m.Send(protocol.CmdConfigScaledTimer, uint32(oid), uint32(id)); err != nil {
		return TimerState{}, err
	}
	// config_scaled_timer is silent on success; the query confirms it.
	if err := m.Send(protocol.CmdQueryScaledTimer, uint32(oid)); err != nil {
		return TimerState{}, err
	}
	return m.awaitTimer(oid)
}

// SetTimerFrequency asks the firmware to pick the scale for freqHz.
func (m *MCU) SetTimerFrequency(oid uint8, freqHz uint32) (TimerState, error) {
	return m.timerCommand(oid, protocol.CmdSetTimerFrequency, uint32(oid), freqHz)
}

// SetTimerTick selects the prescaler whose tick is closest to tickUs.
func (m *MCU) SetTimerTick(oid uint8, tickUs uint16) (TimerState, error) {
	return m.timerCommand(oid, protocol.CmdSetTimerTick, uint32(oid), uint32(tickUs))
}

// SetTimerScale loads a scale computed on the host.
func (m *MCU) SetTimerScale(oid uint8, scale scaling.ClockScale) (TimerState, error) {
	return m.timerCommand(oid, protocol.CmdSetTimerScale,
		uint32(oid), uint32(scale.PrescaleExponent), uint32(scale.CounterLimit))
}

func (m *MCU) StopTimer(oid uint8) (TimerState, error) {
	return m.timerCommand(oid, protocol.CmdStopScaledTimer, uint32(oid))
}

func (m *MCU) QueryTimer(oid uint8) (TimerState, error) {
	return m.timerCommand(oid, protocol.CmdQueryScaledTimer, uint32(oid))
}

func (m *MCU) timerCommand(oid uint8, name string, args ...uint32) (TimerState, error) {
	m.transport.DrainResponses()
	if err := m.Send(name, args...); err != nil {
		return TimerState{}, err
	}
	return m.awaitTimer(oid)
}

// awaitTimer waits for the state or error report naming oid.
func (m *MCU) awaitTimer(oid uint8) (TimerState, error) {
	stateID, ok1 := m.responseIDs[protocol.RespScaledTimerState]
	errorID, ok2 := m.responseIDs[protocol.RespScaledTimerError]
	if !ok1 || !ok2 {
		return TimerState{}, fmt.Errorf("firmware has no scaled timer support")
	}

	deadline := time.Now().Add(DefaultResponseTimeout)
	for {
		id, payload, err := m.nextResponse(deadline.Sub(time.Now()))
		if err != nil {
			return TimerState{}, fmt.Errorf("wait for timer %d: %w", oid, err)
		}

		switch id {
		case stateID:
			args, err := decodeArgs(payload, 5)
			if err != nil {
				return TimerState{}, err
			}
			if uint8(args[0]) != oid {
				continue
			}
			return TimerState{
				OID: oid,
				Scale: scaling.ClockScale{
					PrescaleExponent: uint8(args[1]),
					CounterLimit:     uint16(args[2]),
				},
				Frequency: args[3],
				Running:   args[4] != 0,
			}, nil

		case errorID:
			args, err := decodeArgs(payload, 2)
			if err != nil {
				return TimerState{}, err
			}
			if uint8(args[0]) != oid {
				continue
			}
			return TimerState{}, &TimerError{OID: oid, Code: uint8(args[1])}
		}
	}
}

func (m *MCU) timerEnum() map[string]int {
	if m.dictionary == nil {
		return nil
	}
	return m.dictionary.Enumerations["timer"]
}
