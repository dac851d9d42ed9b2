//go:build rp2040

package main

import (
	"errors"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"prescaler/core"
	"prescaler/scaling"
	"prescaler/specs"
)

// Output pins of the four PIO0 timers, pio0 to pio3.
var pioTimerPins = [4]machine.Pin{machine.GPIO2, machine.GPIO3, machine.GPIO4, machine.GPIO5}

// buildSquareProgram holds the SET pin high for X+7 cycles, then low for
// X+7. A new X may be pushed at any time; with an empty FIFO the pull
// reloads the old one.
func buildSquareProgram(origin uint8) []uint16 {
	loopHigh := origin + 4
	loopLow := origin + 7
	return []uint16{
		rp2pio.EncodePull(false, false),                      // 0: pull noblock
		rp2pio.EncodeMov(rp2pio.SrcDestX, rp2pio.SrcDestOSR), // 1: mov x, osr
		rp2pio.EncodeMov(rp2pio.SrcDestY, rp2pio.SrcDestX),   // 2: mov y, x
		rp2pio.EncodeSet(rp2pio.SrcDestPins, 1) | delay(4),   // 3: set pins, 1 [4]
		rp2pio.EncodeJmp(loopHigh, rp2pio.JmpYNZeroDec),      // 4: jmp y--, 4
		rp2pio.EncodeMov(rp2pio.SrcDestY, rp2pio.SrcDestX),   // 5: mov y, x
		rp2pio.EncodeSet(rp2pio.SrcDestPins, 0) | delay(2),   // 6: set pins, 0 [2]
		rp2pio.EncodeJmp(loopLow, rp2pio.JmpYNZeroDec),       // 7: jmp y--, 7
	}
}

const squareOrigin = 0

func delay(cycles uint8) uint16 {
	return uint16(cycles&0x1f) << 8
}

// PIOTimerDriver runs scaled timers on PIO0 state machines. The prescaler
// is the state machine clock divider and the counter is the loop count, so
// the pin toggles once per counter period.
type PIOTimerDriver struct {
	pio    *rp2pio.PIO
	sms    []rp2pio.StateMachine
	pins   []machine.Pin
	offset uint8
}

func NewPIOTimerDriver(pins []machine.Pin) (*PIOTimerDriver, error) {
	d := &PIOTimerDriver{pio: rp2pio.PIO0, pins: pins}

	program := buildSquareProgram(squareOrigin)
	offset, err := d.pio.AddProgram(program, squareOrigin)
	if err != nil {
		return nil, err
	}
	d.offset = offset

	for i, pin := range pins {
		sm := d.pio.StateMachine(uint8(i))
		if !sm.TryClaim() {
			return nil, errors.New("PIO0 state machine " + itoa(i) + " busy")
		}
		pin.Configure(machine.PinConfig{Mode: d.pio.PinMode()})

		cfg := rp2pio.DefaultStateMachineConfig()
		cfg.SetSetPins(pin, 1)
		cfg.SetWrap(offset+uint8(len(program))-1, offset)
		sm.Init(offset, cfg)
		sm.SetPindirsConsecutive(pin, 1, true)
		sm.SetPinsConsecutive(pin, 1, false)

		d.sms = append(d.sms, sm)
	}
	return d, nil
}

func (d *PIOTimerDriver) ApplyScale(timer core.TimerID, scale scaling.ClockScale) error {
	if int(timer) >= len(d.sms) {
		return errors.New("no PIO timer " + itoa(int(timer)))
	}
	x, err := specs.PIOLoopCount(scale)
	if err != nil {
		return err
	}

	sm := d.sms[timer]
	sm.SetEnabled(false)
	sm.ClearFIFOs()
	sm.SetClkDiv(uint16(1)<<scale.PrescaleExponent, 0)
	sm.Restart()
	sm.ClkDivRestart()
	sm.Exec(rp2pio.EncodeJmp(d.offset, rp2pio.JmpAlways))
	sm.TxPut(x)
	sm.SetEnabled(true)
	return nil
}

func (d *PIOTimerDriver) StopTimer(timer core.TimerID) error {
	if int(timer) >= len(d.sms) {
		return nil
	}
	sm := d.sms[timer]
	sm.SetEnabled(false)
	sm.SetPinsConsecutive(d.pins[timer], 1, false)
	return nil
}
