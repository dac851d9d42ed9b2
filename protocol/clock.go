package protocol

// Scaled timer message names shared by firmware and host. Argument formats
// are published in the data dictionary.
const (
	CmdIdentify          = "identify"
	RespIdentify         = "identify_response"
	CmdConfigScaledTimer = "config_scaled_timer"
	CmdSetTimerFrequency = "set_timer_frequency"
	CmdSetTimerTick      = "set_timer_tick"
	CmdSetTimerScale     = "set_timer_scale"
	CmdStopScaledTimer   = "stop_scaled_timer"
	CmdQueryScaledTimer  = "query_scaled_timer"
	RespScaledTimerState = "scaled_timer_state"
	RespScaledTimerError = "scaled_timer_error"
)

// Error codes carried by scaled_timer_error.
const (
	TimerErrNone            uint8 = 0
	TimerErrMalformed       uint8 = 1
	TimerErrUnrepresentable uint8 = 2
	TimerErrZeroOperand     uint8 = 3
	TimerErrUnknownOID      uint8 = 4
	TimerErrUnknownTimer    uint8 = 5
	TimerErrHardware        uint8 = 6
	TimerErrShutdown        uint8 = 7
)

// TimerErrorText describes a scaled_timer_error code.
func TimerErrorText(code uint8) string {
	switch code {
	case TimerErrNone:
		return "ok"
	case TimerErrMalformed:
		return "malformed scale"
	case TimerErrUnrepresentable:
		return "frequency not representable"
	case TimerErrZeroOperand:
		return "zero operand"
	case TimerErrUnknownOID:
		return "unknown oid"
	case TimerErrUnknownTimer:
		return "unknown timer"
	case TimerErrHardware:
		return "timer hardware error"
	case TimerErrShutdown:
		return "firmware shut down"
	default:
		return "unknown error"
	}
}
