//go:build rp2040

package main

import (
	"machine"
	"time"

	"prescaler/core"
	"prescaler/protocol"
	"prescaler/scaling"
	"prescaler/specs"
)

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	msgErrors uint32

	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Clear any watchdog state left by a previous reset.
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()
	InitDebugUART()
	InitClock()

	core.SetDebugWriter(DebugPrintln)
	core.InitCoreCommands()

	// Without PIO the firmware still talks to the host, with no timers.
	driver, err := NewPIOTimerDriver(pioTimerPins[:])
	if err != nil {
		DebugPrintln("PIO timers unavailable: " + err.Error())
	} else {
		for i := range pioTimerPins {
			if _, err := core.RegisterTimerTable(specs.NamePIOTimer+itoa(i), specs.PIOTimer); err != nil {
				DebugPrintln(err.Error())
			}
		}
		core.SetTimerDriver(driver)
	}
	core.InitClockCommands(scaling.NewCalculator(machine.CPUFrequency(), scaling.WithDebugWriter(core.ScaleTrace)))

	dict := core.GetGlobalDictionary()
	dict.SetVersion(protocol.Version)
	dict.SetBuildVersions("tinygo rp2040")
	dict.BuildDictionary()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	transport = protocol.NewTransport(outputBuffer, core.DispatchCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
		core.ResetFirmwareState()
	})
	// Responses and the ACK leave as soon as a block is handled.
	transport.SetFlushCallback(writeUSB)
	transport.SetErrorHandler(func(cmdID uint16, err error) {
		msgErrors++
		DebugPrintln("command " + itoa(int(cmdID)) + ": " + err.Error())
	})
	core.SetGlobalTransport(transport)

	go usbReaderLoop()

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgErrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			UpdateSystemTime()

			if inputBuffer.Available() > 0 {
				in := protocol.NewSliceInputBuffer(inputBuffer.Data())
				before := in.Available()
				transport.Receive(in)
				if consumed := before - in.Available(); consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}

			if len(outputBuffer.Result()) > 0 {
				writeUSB()
			}

			core.ProcessTimers()
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// usbReaderLoop moves USB bytes into inputBuffer.
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgErrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			data, err := USBRead()
			if err != nil {
				msgErrors++
				time.Sleep(time.Millisecond)
				continue
			}

			// A host that reconnects starts a new session.
			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				core.StopAllScaledTimers()
				core.ResetScaledTimers()
				core.ResetFirmwareState()
				consecutiveWriteFailures = 0
			}

			if inputBuffer.Write([]byte{data}) == 0 {
				msgErrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB drains outputBuffer. Repeated failures mark the host as gone.
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
