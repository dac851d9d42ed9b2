//go:build avr && atmega328p

package main

import (
	"device/avr"
	"errors"
	"machine"
	"runtime/volatile"

	"prescaler/scaling"
	"prescaler/specs"
)

// ctcTimer is an AVR timer in clear-timer-on-compare mode with its A output
// toggling on every match. Timer0 is left to the runtime.
type ctcTimer struct {
	tccrA, tccrB *volatile.Register8
	ocrH, ocrL   *volatile.Register8 // ocrH is nil on 8-bit timers
	wgmA, wgmB   uint8
	out          machine.Pin
	table        scaling.ScalingTable
}

const comA0 = 1 << 6 // COMnA0: toggle OCnA on compare match

var (
	timer1 = &ctcTimer{
		tccrA: avr.TCCR1A,
		tccrB: avr.TCCR1B,
		ocrH:  avr.OCR1AH,
		ocrL:  avr.OCR1AL,
		wgmB:  1 << 3, // WGM12
		out:   machine.PB1,
		table: specs.Counter2,
	}
	timer2 = &ctcTimer{
		tccrA: avr.TCCR2A,
		tccrB: avr.TCCR2B,
		ocrL:  avr.OCR2A,
		wgmA:  1 << 1, // WGM21
		out:   machine.PB3,
		table: specs.Counter3,
	}
)

// clockSelect returns the CSn2:0 bits for a prescaler exponent: the index
// of the exponent in the timer's table plus one.
func (t *ctcTimer) clockSelect(exp uint8) (uint8, error) {
	for i, e := range t.table.PrescaleExponents {
		if e == exp {
			return uint8(i + 1), nil
		}
	}
	return 0, errors.New("prescaler not available on this timer")
}

func (t *ctcTimer) apply(scale scaling.ClockScale) error {
	top, err := scaling.MaxCounterValue(t.table.Bound(0))
	if err != nil {
		return err
	}
	if scale.CounterLimit > top {
		return errors.New("counter limit exceeds timer width")
	}
	cs, err := t.clockSelect(scale.PrescaleExponent)
	if err != nil {
		return err
	}

	t.out.Configure(machine.PinConfig{Mode: machine.PinOutput})

	// Stop the clock while the compare value changes.
	t.tccrB.Set(0)
	t.tccrA.Set(comA0 | t.wgmA)
	if t.ocrH != nil {
		// 16-bit registers are written high byte first.
		t.ocrH.Set(uint8(scale.CounterLimit >> 8))
	}
	t.ocrL.Set(uint8(scale.CounterLimit))
	t.tccrB.Set(t.wgmB | cs)
	return nil
}
