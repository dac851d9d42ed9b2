//go:build avr && atmega328p

// Command atmega328p programs Timer1 of an ATmega328P for a fixed compare
// match rate, chosen at boot by the prescaler calculator, and reports the
// result on the serial console.
package main

import (
	"machine"
	"time"

	"prescaler/scaling"
	"prescaler/specs"
)

// Compare match rate for OC1A (D9). The pin toggles on each match, so the
// square wave on D9 runs at half this rate.
const outputHz = 1000

// Timer2 drives OC2A (D11) with a 4 us tick, free-running.
const tickUs = 4

func main() {
	machine.Serial.Configure(machine.UARTConfig{BaudRate: 115200})
	calc := scaling.NewCalculator(machine.CPUFrequency(), scaling.WithDebugWriter(func(msg string) { println(msg) }))

	scale, err := calc.FindScale(outputHz, specs.Counter2)
	if err != nil {
		println("timer1:", err.Error())
		halt()
	}
	if err := timer1.apply(scale); err != nil {
		println("timer1:", err.Error())
		halt()
	}
	report("timer1", calc, scale)

	exp, err := calc.MatchTickDuration(tickUs, specs.Counter3)
	if err != nil {
		println("timer2:", err.Error())
		halt()
	}
	limit, _ := scaling.MaxCounterValue(specs.Counter3.Bound(0))
	scale = scaling.ClockScale{PrescaleExponent: exp, CounterLimit: limit}
	if err := timer2.apply(scale); err != nil {
		println("timer2:", err.Error())
		halt()
	}
	report("timer2", calc, scale)

	for {
		time.Sleep(time.Second)
	}
}

func report(name string, calc *scaling.Calculator, scale scaling.ClockScale) {
	freq, _ := calc.RecoverFrequency(scale)
	println(name, "prescale:", scale.PrescaleExponent, "limit:", scale.CounterLimit, "freq:", freq)
}

func halt() {
	for {
		time.Sleep(time.Second)
	}
}
