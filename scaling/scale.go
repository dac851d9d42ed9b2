// Package scaling converts between an operating frequency and the
// prescaler/counter pair accepted by fixed-function timers and baud
// generators.
//
// A peripheral divides its base clock by a power of two (the prescaler) and
// then counts CounterLimit+1 prescaled cycles before it fires. The package
// searches a caller supplied table of legal prescaler exponents for a pair
// that realises a requested frequency, recovers the frequency a pair produces,
// and picks the exponent whose tick duration is closest to a target.
//
// Nothing here touches hardware, allocates on the search paths or keeps
// mutable state, so the package builds unchanged for TinyGo targets.
package scaling

const (
	// MaxPrescaleExponent is the largest supported prescaler exponent (divide by 65536).
	MaxPrescaleExponent = 16

	// MaxCounterBits is the widest supported counter register.
	MaxCounterBits = 16

	// MaxPrescalerValues is the maximum number of entries in a ScalingTable.
	MaxPrescalerValues = 7
)

// ClockScale is a concrete prescaler/counter setting.
// The prescaler divides by 2^PrescaleExponent and the counter counts
// CounterLimit+1 prescaled cycles (CounterLimit is zero based).
type ClockScale struct {
	PrescaleExponent uint8
	CounterLimit     uint16
}

// Validate reports whether the prescaler exponent is in range.
func (s ClockScale) Validate() error {
	if s.PrescaleExponent > MaxPrescaleExponent {
		return malformed("validate scale", "prescale exponent "+utoa(uint32(s.PrescaleExponent))+" > 16")
	}
	return nil
}

// Divisor returns the prescaler division ratio.
func (s ClockScale) Divisor() uint32 {
	return 1 << s.PrescaleExponent
}

// Cycles returns the number of base clock cycles per counter period.
func (s ClockScale) Cycles() uint64 {
	return uint64(s.Divisor()) * (uint64(s.CounterLimit) + 1)
}

// ScaleBound describes one prescaler setting of a peripheral together with
// the width of its counter register.
type ScaleBound struct {
	PrescaleExponent uint8
	CounterBits      uint8
}

// Validate reports whether both fields are within the supported range.
func (b ScaleBound) Validate() error {
	if b.PrescaleExponent > MaxPrescaleExponent {
		return malformed("validate bound", "prescale exponent "+utoa(uint32(b.PrescaleExponent))+" > 16")
	}
	if b.CounterBits > MaxCounterBits {
		return malformed("validate bound", "counter bits "+utoa(uint32(b.CounterBits))+" > 16")
	}
	return nil
}

// counterCapacity returns 2^CounterBits, the number of distinct counts.
func (b ScaleBound) counterCapacity() uint32 {
	return 1 << b.CounterBits
}

// ScalingTable lists the prescaler exponents a peripheral supports, in
// ascending order, and the shared counter width.
type ScalingTable struct {
	PrescaleExponents []uint8
	CounterBits       uint8
}

// Validate checks the table size, the counter width, every exponent and the
// strictly ascending order. Any violation rejects the whole table.
func (t ScalingTable) Validate() error {
	n := len(t.PrescaleExponents)
	if n == 0 {
		return malformed("validate table", "no prescaler values")
	}
	if n > MaxPrescalerValues {
		return malformed("validate table", utoa(uint32(n))+" prescaler values > 7")
	}
	if t.CounterBits > MaxCounterBits {
		return malformed("validate table", "counter bits "+utoa(uint32(t.CounterBits))+" > 16")
	}
	for i, exp := range t.PrescaleExponents {
		if exp > MaxPrescaleExponent {
			return malformed("validate table", "prescale exponent "+utoa(uint32(exp))+" > 16")
		}
		if i > 0 && exp <= t.PrescaleExponents[i-1] {
			return malformed("validate table", "prescale exponents not strictly ascending at index "+utoa(uint32(i)))
		}
	}
	return nil
}

// Bound returns the ScaleBound for the i-th table entry.
func (t ScalingTable) Bound(i int) ScaleBound {
	return ScaleBound{PrescaleExponent: t.PrescaleExponents[i], CounterBits: t.CounterBits}
}

// Contains reports whether exp is one of the table's prescaler exponents.
func (t ScalingTable) Contains(exp uint8) bool {
	for _, e := range t.PrescaleExponents {
		if e == exp {
			return true
		}
	}
	return false
}
