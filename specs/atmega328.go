// Package specs holds prescaler tables for supported peripherals.
// Tables are plain data handed to scaling.Calculator; the calculator never
// assumes a particular chip.
package specs

import "prescaler/scaling"

// ATmega328 timer and baud generator tables.
var (
	// Counter1 is Timer0: 8-bit counter, clk/1, /8, /64, /256, /1024.
	Counter1 = scaling.ScalingTable{
		PrescaleExponents: []uint8{0, 3, 6, 8, 10},
		CounterBits:       8,
	}

	// Counter2 is Timer1: 16-bit counter with the Timer0 prescaler set.
	Counter2 = scaling.ScalingTable{
		PrescaleExponents: []uint8{0, 3, 6, 8, 10},
		CounterBits:       16,
	}

	// Counter3 is Timer2: 8-bit counter with the extra /32 and /128 taps.
	Counter3 = scaling.ScalingTable{
		PrescaleExponents: []uint8{0, 3, 5, 6, 7, 8, 10},
		CounterBits:       8,
	}

	// Uart is the USART baud generator: /8 in double speed mode, /16
	// otherwise, with a 12-bit UBRR register.
	Uart = scaling.ScalingTable{
		PrescaleExponents: []uint8{3, 4},
		CounterBits:       12,
	}
)

// Table names used by Lookup, configuration files and the firmware dictionary.
const (
	NameCounter1 = "counter1"
	NameCounter2 = "counter2"
	NameCounter3 = "counter3"
	NameUart     = "uart"
)

var builtin = []struct {
	name  string
	table scaling.ScalingTable
}{
	{NameCounter1, Counter1},
	{NameCounter2, Counter2},
	{NameCounter3, Counter3},
	{NameUart, Uart},
	{NamePIOTimer, PIOTimer},
}

// Lookup returns a built-in table by name.
func Lookup(name string) (scaling.ScalingTable, bool) {
	for _, b := range builtin {
		if b.name == name {
			return b.table, true
		}
	}
	return scaling.ScalingTable{}, false
}

// Names returns the built-in table names in declaration order.
func Names() []string {
	names := make([]string, len(builtin))
	for i, b := range builtin {
		names[i] = b.name
	}
	return names
}
