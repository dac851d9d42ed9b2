//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"prescaler/core"
)

// RP2040 TIMER peripheral: a free-running 1 MHz counter.
const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x0C
)

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

// InitClock publishes the MCU name. The scheduler ticks at the TIMER rate,
// which is core.SystemTickFreq's default.
func InitClock() {
	core.SystemTickFreq = 1000000
	core.RegisterConstant("MCU", "rp2040")
}

// UpdateSystemTime copies the low word of TIMER into the core clock.
func UpdateSystemTime() {
	core.SetTime(timerRAWL.Get())
}
