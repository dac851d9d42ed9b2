package core

import (
	"errors"
	"sync"

	"prescaler/protocol"
	"prescaler/scaling"
)

// ScaledTimer is a host object (oid) bound to a hardware timer.
type ScaledTimer struct {
	OID       uint8
	Timer     TimerID
	Scale     scaling.ClockScale
	Frequency uint32 // Recovered from Scale
	Running   bool
}

type timerSlot struct {
	name  string
	table scaling.ScalingTable
}

var (
	clockMu      sync.Mutex
	clockCalc    *scaling.Calculator
	timerSlots   []timerSlot
	scaledTimers = make(map[uint8]*ScaledTimer)
)

// RegisterTimerTable declares a hardware timer and its prescaler table.
// Targets call it before InitClockCommands.
func RegisterTimerTable(name string, table scaling.ScalingTable) (TimerID, error) {
	if err := table.Validate(); err != nil {
		return 0, err
	}

	clockMu.Lock()
	defer clockMu.Unlock()
	if len(timerSlots) > 255 {
		return 0, errors.New("too many timers")
	}
	timerSlots = append(timerSlots, timerSlot{name: name, table: table})
	return TimerID(len(timerSlots) - 1), nil
}

// InitClockCommands registers the scaled timer commands. calc carries the
// timer base clock, published as CLOCK_FREQ.
func InitClockCommands(calc *scaling.Calculator) {
	clockMu.Lock()
	clockCalc = calc
	names := make([]string, len(timerSlots))
	for i, slot := range timerSlots {
		names[i] = slot.name
	}
	clockMu.Unlock()

	RegisterConstant("CLOCK_FREQ", calc.BaseClock())
	RegisterEnumeration("timer", names)

	RegisterCommand(protocol.CmdConfigScaledTimer, "oid=%c timer=%c", handleConfigScaledTimer)
	RegisterCommand(protocol.CmdSetTimerFrequency, "oid=%c freq=%u", handleSetTimerFrequency)
	RegisterCommand(protocol.CmdSetTimerTick, "oid=%c tick_us=%hu", handleSetTimerTick)
	RegisterCommand(protocol.CmdSetTimerScale, "oid=%c prescale=%c limit=%hu", handleSetTimerScale)
	RegisterCommand(protocol.CmdStopScaledTimer, "oid=%c", handleStopScaledTimer)
	RegisterCommand(protocol.CmdQueryScaledTimer, "oid=%c", handleQueryScaledTimer)

	RegisterResponse(protocol.RespScaledTimerState, "oid=%c prescale=%c limit=%hu freq=%u running=%c")
	RegisterResponse(protocol.RespScaledTimerError, "oid=%c code=%c")
}

// GetScaledTimer returns a copy of the timer state for oid.
func GetScaledTimer(oid uint8) (ScaledTimer, bool) {
	clockMu.Lock()
	defer clockMu.Unlock()
	st, ok := scaledTimers[oid]
	if !ok {
		return ScaledTimer{}, false
	}
	return *st, true
}

// ResetScaledTimers forgets all oids. Hardware is left as is.
func ResetScaledTimers() {
	clockMu.Lock()
	defer clockMu.Unlock()
	scaledTimers = make(map[uint8]*ScaledTimer)
}

// StopAllScaledTimers halts every running timer.
func StopAllScaledTimers() {
	clockMu.Lock()
	defer clockMu.Unlock()
	if timerDriver == nil {
		return
	}
	for _, st := range scaledTimers {
		if st.Running {
			_ = timerDriver.StopTimer(st.Timer)
			st.Running = false
		}
	}
}

func handleConfigScaledTimer(data *[]byte) error {
	oid, err := decodeUint8(data)
	if err != nil {
		return err
	}
	timer, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	clockMu.Lock()
	defer clockMu.Unlock()

	if timer >= uint32(len(timerSlots)) {
		sendTimerError(oid, protocol.TimerErrUnknownTimer)
		return nil
	}
	if old, ok := scaledTimers[oid]; ok && old.Running {
		_ = MustTimer().StopTimer(old.Timer)
	}
	scaledTimers[oid] = &ScaledTimer{OID: oid, Timer: TimerID(timer)}
	DebugPrintln("[clock] oid=" + utoa(uint32(oid)) + " timer=" + timerSlots[timer].name)
	return nil
}

func handleSetTimerFrequency(data *[]byte) error {
	oid, err := decodeUint8(data)
	if err != nil {
		return err
	}
	freq, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	clockMu.Lock()
	defer clockMu.Unlock()

	st, table, ok := lookupTimer(oid)
	if !ok {
		return nil
	}
	scale, err := clockCalc.FindScale(freq, table)
	if err != nil {
		sendTimerError(oid, timerErrorCode(err))
		return nil
	}
	applyScale(st, scale)
	return nil
}

// handleSetTimerTick picks the prescaler whose tick is closest to tick_us
// and lets the counter run over its full width.
func handleSetTimerTick(data *[]byte) error {
	oid, err := decodeUint8(data)
	if err != nil {
		return err
	}
	tickUs, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	clockMu.Lock()
	defer clockMu.Unlock()

	st, table, ok := lookupTimer(oid)
	if !ok {
		return nil
	}
	if tickUs > 0xFFFF {
		sendTimerError(oid, protocol.TimerErrMalformed)
		return nil
	}
	exp, err := clockCalc.MatchTickDuration(uint16(tickUs), table)
	if err != nil {
		sendTimerError(oid, timerErrorCode(err))
		return nil
	}
	limit, err := scaling.MaxCounterValue(scaling.ScaleBound{PrescaleExponent: exp, CounterBits: table.CounterBits})
	if err != nil {
		sendTimerError(oid, timerErrorCode(err))
		return nil
	}
	applyScale(st, scaling.ClockScale{PrescaleExponent: exp, CounterLimit: limit})
	return nil
}

// handleSetTimerScale loads a raw scale after checking it against the
// timer's table and counter width.
func handleSetTimerScale(data *[]byte) error {
	oid, err := decodeUint8(data)
	if err != nil {
		return err
	}
	prescale, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	limit, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	clockMu.Lock()
	defer clockMu.Unlock()

	st, table, ok := lookupTimer(oid)
	if !ok {
		return nil
	}
	if prescale > scaling.MaxPrescaleExponent || limit > 0xFFFF || !table.Contains(uint8(prescale)) {
		sendTimerError(oid, protocol.TimerErrMalformed)
		return nil
	}
	maxLimit, err := scaling.MaxCounterValue(scaling.ScaleBound{PrescaleExponent: uint8(prescale), CounterBits: table.CounterBits})
	if err != nil || limit > uint32(maxLimit) {
		sendTimerError(oid, protocol.TimerErrMalformed)
		return nil
	}
	applyScale(st, scaling.ClockScale{PrescaleExponent: uint8(prescale), CounterLimit: uint16(limit)})
	return nil
}

// handleStopScaledTimer also answers while shut down; the timers are
// already halted then and the reply carries running=0.
func handleStopScaledTimer(data *[]byte) error {
	oid, err := decodeUint8(data)
	if err != nil {
		return err
	}

	clockMu.Lock()
	defer clockMu.Unlock()

	st, ok := scaledTimers[oid]
	if !ok {
		sendTimerError(oid, protocol.TimerErrUnknownOID)
		return nil
	}
	if st.Running {
		if err := MustTimer().StopTimer(st.Timer); err != nil {
			sendTimerError(oid, protocol.TimerErrHardware)
			return nil
		}
		st.Running = false
	}
	sendTimerState(st)
	return nil
}

func handleQueryScaledTimer(data *[]byte) error {
	oid, err := decodeUint8(data)
	if err != nil {
		return err
	}

	clockMu.Lock()
	defer clockMu.Unlock()

	st, ok := scaledTimers[oid]
	if !ok {
		sendTimerError(oid, protocol.TimerErrUnknownOID)
		return nil
	}
	sendTimerState(st)
	return nil
}

// lookupTimer resolves oid and reports errors to the host. Caller holds clockMu.
func lookupTimer(oid uint8) (*ScaledTimer, scaling.ScalingTable, bool) {
	st, ok := scaledTimers[oid]
	if !ok {
		sendTimerError(oid, protocol.TimerErrUnknownOID)
		return nil, scaling.ScalingTable{}, false
	}
	if IsShutdown() {
		sendTimerError(oid, protocol.TimerErrShutdown)
		return nil, scaling.ScalingTable{}, false
	}
	return st, timerSlots[st.Timer].table, true
}

// applyScale programs the hardware and reports the new state. Caller holds clockMu.
func applyScale(st *ScaledTimer, scale scaling.ClockScale) {
	if err := MustTimer().ApplyScale(st.Timer, scale); err != nil {
		DebugPrintln("[clock] apply failed: " + err.Error())
		sendTimerError(st.OID, protocol.TimerErrHardware)
		return
	}

	freq, err := clockCalc.RecoverFrequency(scale)
	if err != nil {
		freq = 0
	}
	st.Scale = scale
	st.Frequency = freq
	st.Running = true
	sendTimerState(st)
}

func sendTimerState(st *ScaledTimer) {
	SendResponse(protocol.RespScaledTimerState, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(st.OID))
		protocol.EncodeVLQUint(output, uint32(st.Scale.PrescaleExponent))
		protocol.EncodeVLQUint(output, uint32(st.Scale.CounterLimit))
		protocol.EncodeVLQUint(output, st.Frequency)
		protocol.EncodeVLQUint(output, boolToUint(st.Running))
	})
}

func sendTimerError(oid uint8, code uint8) {
	DebugPrintln("[clock] oid=" + utoa(uint32(oid)) + " error: " + protocol.TimerErrorText(code))
	SendResponse(protocol.RespScaledTimerError, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(code))
	})
}

func timerErrorCode(err error) uint8 {
	switch {
	case errors.Is(err, scaling.ErrMalformed):
		return protocol.TimerErrMalformed
	case errors.Is(err, scaling.ErrUnrepresentable):
		return protocol.TimerErrUnrepresentable
	case errors.Is(err, scaling.ErrZeroOperand):
		return protocol.TimerErrZeroOperand
	default:
		return protocol.TimerErrHardware
	}
}

func decodeUint8(data *[]byte) (uint8, error) {
	v, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return 0, err
	}
	if v > 0xFF {
		return 0, errors.New("value out of range for %c: " + utoa(v))
	}
	return uint8(v), nil
}
