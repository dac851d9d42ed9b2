package specs

import (
	"testing"

	"prescaler/scaling"
)

func TestPIOLoopCount(t *testing.T) {
	tests := []struct {
		name    string
		scale   scaling.ClockScale
		want    uint32
		wantErr bool
	}{
		{"shortest half period", scaling.ClockScale{PrescaleExponent: 0, CounterLimit: 6}, 0, false},
		{"one cycle too short", scaling.ClockScale{PrescaleExponent: 0, CounterLimit: 5}, 0, true},
		{"1 kHz at 125 MHz", scaling.ClockScale{PrescaleExponent: 2, CounterLimit: 31249}, 31243, false},
		{"full counter", scaling.ClockScale{PrescaleExponent: 12, CounterLimit: 65535}, 65529, false},
		{"divider too wide", scaling.ClockScale{PrescaleExponent: 16, CounterLimit: 100}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PIOLoopCount(tt.scale)
			if tt.wantErr {
				if err == nil {
					t.Errorf("PIOLoopCount(%+v) = %d, want error", tt.scale, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("PIOLoopCount(%+v): %v", tt.scale, err)
			}
			if got != tt.want {
				t.Errorf("PIOLoopCount(%+v) = %d, want %d", tt.scale, got, tt.want)
			}
		})
	}
}

func TestPIOTimerTableValid(t *testing.T) {
	if err := PIOTimer.Validate(); err != nil {
		t.Fatal(err)
	}
	for _, exp := range PIOTimer.PrescaleExponents {
		if _, err := PIOLoopCount(scaling.ClockScale{PrescaleExponent: exp, CounterLimit: 65535}); err != nil {
			t.Errorf("exponent %d rejected: %v", exp, err)
		}
	}
}
