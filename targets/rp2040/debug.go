//go:build rp2040

package main

import "machine"

var debugUART *machine.UART

// InitDebugUART brings up UART0 on GPIO0 (TX) and GPIO1 (RX) at 115200
// baud for firmware debug lines.
func InitDebugUART() {
	uart := machine.UART0
	err := uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	if err != nil {
		return
	}
	debugUART = uart
	DebugPrintln("prescaler rp2040 debug uart")
}

// DebugPrintln writes one line to the debug UART.
func DebugPrintln(msg string) {
	if debugUART == nil {
		return
	}
	debugUART.Write([]byte(msg))
	debugUART.Write([]byte("\r\n"))
}
