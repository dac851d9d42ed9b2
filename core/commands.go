package core

import (
	"sync/atomic"

	"prescaler/protocol"
)

// FirmwareState holds the configuration handshake state.
type FirmwareState struct {
	configCRC  uint32 // atomic
	isShutdown uint32 // atomic bool
}

var globalState = &FirmwareState{}

// InitCoreCommands registers the bootstrap and configuration commands.
// identify_response and identify must keep ids 0 and 1; the host sends
// identify before it has a dictionary.
func InitCoreCommands() {
	RegisterResponse(protocol.RespIdentify, "offset=%u data=%*s") // ID 0
	RegisterCommand(protocol.CmdIdentify, "offset=%u count=%c", handleIdentify)

	RegisterCommand("get_config", "", handleGetConfig)
	RegisterCommand("config_reset", "", handleConfigReset)
	RegisterCommand("finalize_config", "crc=%u", handleFinalizeConfig)
	RegisterCommand("emergency_stop", "", handleEmergencyStop)

	RegisterResponse("config", "is_config=%c crc=%u is_shutdown=%c")
	RegisterResponse("shutdown", "reason=%*s")
}

// handleIdentify returns one chunk of the data dictionary.
func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))
	SendResponse(protocol.RespIdentify, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func handleGetConfig(data *[]byte) error {
	crc := atomic.LoadUint32(&globalState.configCRC)
	SendResponse("config", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, boolToUint(crc != 0))
		protocol.EncodeVLQUint(output, crc)
		protocol.EncodeVLQUint(output, boolToUint(IsShutdown()))
	})
	return nil
}

// handleConfigReset forgets every configured timer so the host can
// configure from scratch.
func handleConfigReset(data *[]byte) error {
	atomic.StoreUint32(&globalState.configCRC, 0)
	atomic.StoreUint32(&globalState.isShutdown, 0)
	StopAllScaledTimers()
	ResetScaledTimers()
	return nil
}

func handleFinalizeConfig(data *[]byte) error {
	crc, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	atomic.StoreUint32(&globalState.configCRC, crc)
	return nil
}

func handleEmergencyStop(data *[]byte) error {
	TryShutdown("emergency stop")
	return nil
}

// TryShutdown stops every scaled timer and reports reason to the host.
// Commands that change a timer are refused until config_reset.
func TryShutdown(reason string) {
	if !atomic.CompareAndSwapUint32(&globalState.isShutdown, 0, 1) {
		return
	}
	StopAllScaledTimers()
	SendResponse("shutdown", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQBytes(output, []byte(reason))
	})
}

func IsShutdown() bool {
	return atomic.LoadUint32(&globalState.isShutdown) != 0
}

// ResetFirmwareState clears the handshake state, e.g. after USB reconnect.
func ResetFirmwareState() {
	atomic.StoreUint32(&globalState.configCRC, 0)
	atomic.StoreUint32(&globalState.isShutdown, 0)
}

func boolToUint(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
