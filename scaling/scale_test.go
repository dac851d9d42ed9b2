package scaling

import (
	"errors"
	"strings"
	"testing"
)

func TestScaleBoundValidate(t *testing.T) {
	for exp := uint8(0); exp <= 20; exp++ {
		for bits := uint8(0); bits <= 20; bits++ {
			err := ScaleBound{PrescaleExponent: exp, CounterBits: bits}.Validate()
			valid := exp <= MaxPrescaleExponent && bits <= MaxCounterBits
			if valid && err != nil {
				t.Errorf("bound {%d, %d}: unexpected error %v", exp, bits, err)
			}
			if !valid && !errors.Is(err, ErrMalformed) {
				t.Errorf("bound {%d, %d}: expected ErrMalformed, got %v", exp, bits, err)
			}
		}
	}
}

func TestClockScaleValidate(t *testing.T) {
	if err := (ClockScale{PrescaleExponent: 16, CounterLimit: 65535}).Validate(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := (ClockScale{PrescaleExponent: 17}).Validate(); !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed, got %v", err)
	}
}

func TestClockScaleCycles(t *testing.T) {
	s := ClockScale{PrescaleExponent: 6, CounterLimit: 249}
	if s.Divisor() != 64 {
		t.Errorf("Expected divisor 64, got %d", s.Divisor())
	}
	if s.Cycles() != 16000 {
		t.Errorf("Expected 16000 cycles, got %d", s.Cycles())
	}
}

func TestScalingTableValidate(t *testing.T) {
	tests := []struct {
		name  string
		table ScalingTable
		ok    bool
	}{
		{"single entry", ScalingTable{[]uint8{0}, 8}, true},
		{"seven entries", ScalingTable{[]uint8{0, 1, 2, 3, 4, 5, 6}, 16}, true},
		{"max exponent", ScalingTable{[]uint8{3, 16}, 0}, true},
		{"empty", ScalingTable{nil, 8}, false},
		{"eight entries", ScalingTable{[]uint8{0, 1, 2, 3, 4, 5, 6, 7}, 8}, false},
		{"counter too wide", ScalingTable{[]uint8{0, 3}, 17}, false},
		{"exponent too large", ScalingTable{[]uint8{0, 17}, 8}, false},
		{"duplicate", ScalingTable{[]uint8{0, 3, 3}, 8}, false},
		{"descending", ScalingTable{[]uint8{3, 0}, 8}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if tt.ok && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrMalformed) {
				t.Errorf("Expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestScalingTableContains(t *testing.T) {
	table := ScalingTable{[]uint8{0, 3, 6, 8, 10}, 8}
	if !table.Contains(6) {
		t.Error("Expected table to contain 6")
	}
	if table.Contains(5) {
		t.Error("Expected table not to contain 5")
	}
	if b := table.Bound(2); b != (ScaleBound{6, 8}) {
		t.Errorf("Bound(2) = %+v, want {6 8}", b)
	}
}

func TestErrorMessage(t *testing.T) {
	err := ScalingTable{[]uint8{3, 0}, 8}.Validate()

	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if serr.Op != "validate table" {
		t.Errorf("Expected op 'validate table', got '%s'", serr.Op)
	}
	if !strings.Contains(err.Error(), "not strictly ascending at index 1") {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}
