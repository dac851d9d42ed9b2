package specs

import (
	"testing"

	"prescaler/scaling"
)

func TestBuiltinTablesValid(t *testing.T) {
	for _, name := range Names() {
		table, ok := Lookup(name)
		if !ok {
			t.Fatalf("Lookup(%q) failed", name)
		}
		if err := table.Validate(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, ok := Lookup("timer9"); ok {
		t.Error("Expected unknown table lookup to fail")
	}
}

func TestUartBaudRegister(t *testing.T) {
	calc := scaling.NewCalculator(16000000)

	// UBRR values from the ATmega328 datasheet, U2X = 1 at 16 MHz.
	tests := []struct {
		baud uint32
		ubrr uint16
	}{
		{9600, 207},
		{19200, 103},
		{38400, 51},
		{57600, 34},
		{115200, 16},
	}

	for _, tt := range tests {
		scale, err := calc.FindScale(tt.baud, Uart)
		if err != nil {
			t.Errorf("%d baud: %v", tt.baud, err)
			continue
		}
		if scale.PrescaleExponent != 3 {
			t.Errorf("%d baud: expected double speed prescaler, got exponent %d", tt.baud, scale.PrescaleExponent)
		}
		if scale.CounterLimit != tt.ubrr {
			t.Errorf("%d baud: UBRR = %d, want %d", tt.baud, scale.CounterLimit, tt.ubrr)
		}
	}
}

func TestCounter1Millisecond(t *testing.T) {
	calc := scaling.NewCalculator(16000000)
	scale, err := calc.FindScale(1000, Counter1)
	if err != nil {
		t.Fatalf("FindScale failed: %v", err)
	}
	if scale != (scaling.ClockScale{PrescaleExponent: 6, CounterLimit: 249}) {
		t.Errorf("Expected {6 249}, got %+v", scale)
	}
}

func TestUartBaud(t *testing.T) {
	calc := scaling.NewCalculator(16000000)

	s, err := UartBaud(calc, 9600)
	if err != nil {
		t.Fatalf("UartBaud: %v", err)
	}
	if !s.DoubleSpeed || s.UBRR != 207 || s.Actual != 9615 {
		t.Errorf("UartBaud(9600) = %+v", s)
	}
	if e := s.ErrorPercent(9600); e < 0.15 || e > 0.17 {
		t.Errorf("ErrorPercent = %.3f, want about 0.16", e)
	}

	// Below 2e6/4096 Hz the double speed divider runs out of range.
	s, err = UartBaud(calc, 300)
	if err != nil {
		t.Fatalf("UartBaud(300): %v", err)
	}
	if s.DoubleSpeed || s.UBRR != 3332 {
		t.Errorf("UartBaud(300) = %+v", s)
	}

	if _, err := UartBaud(calc, 100); err == nil {
		t.Error("UartBaud(100) should not be representable")
	}
}
