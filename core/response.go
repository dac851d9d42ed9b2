package core

import "prescaler/protocol"

// ResponseSender is the part of protocol.Transport responses go through.
type ResponseSender interface {
	SendCommand(cmdID uint16, args func(output protocol.OutputBuffer))
}

var globalTransport ResponseSender

// SetGlobalTransport sets where SendResponse writes. Called by target main.
func SetGlobalTransport(transport ResponseSender) {
	globalTransport = transport
}

// SendResponse encodes a registered response. Without a transport it is a no-op.
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(responseName)
	if !ok {
		// Every response is registered at init; a miss is a programming error.
		panic("response not registered: " + responseName)
	}
	globalTransport.SendCommand(cmd.ID, args)
}
