package scaling

// DebugWriter receives one line per search step when attached with
// WithDebugWriter.
type DebugWriter func(string)

// Option configures a Calculator.
type Option func(*Calculator)

// WithDebugWriter traces every search step to w.
func WithDebugWriter(w DebugWriter) Option {
	return func(c *Calculator) {
		c.debug = w
	}
}

// Calculator performs scale searches against a fixed base clock.
// It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	baseClock uint32
	debug     DebugWriter
}

// NewCalculator returns a Calculator for a peripheral clocked at baseClockHz.
func NewCalculator(baseClockHz uint32, opts ...Option) *Calculator {
	c := &Calculator{baseClock: baseClockHz}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseClock returns the base clock frequency in Hz.
func (c *Calculator) BaseClock() uint32 {
	return c.baseClock
}

func (c *Calculator) trace(msg string) {
	if c.debug != nil {
		c.debug(msg)
	}
}

// FindScaleForBound finds the counter limit that brings the base clock,
// divided by the bound's prescaler, closest to freqHz.
//
// It fails with ErrUnrepresentable when the rounded count is zero (the target
// is faster than the prescaled clock can express) or larger than the counter
// can hold. A count of exactly 2^CounterBits is accepted.
func (c *Calculator) FindScaleForBound(freqHz uint32, b ScaleBound) (ClockScale, error) {
	if err := b.Validate(); err != nil {
		return ClockScale{}, err
	}

	scaled, err := DivRound(c.baseClock, uint32(1)<<b.PrescaleExponent)
	if err != nil {
		return ClockScale{}, err
	}
	count, err := DivRound(scaled, freqHz)
	if err != nil {
		return ClockScale{}, err
	}

	if c.debug != nil {
		c.trace("prescale=" + utoa(uint32(b.PrescaleExponent)) +
			" scaled_freq=" + utoa(scaled) +
			" count=" + utoa(count))
	}

	if count == 0 {
		return ClockScale{}, unrepresentable("find scale", "count rounds to zero at prescale "+utoa(uint32(b.PrescaleExponent)))
	}
	if count > b.counterCapacity() {
		return ClockScale{}, unrepresentable("find scale", "count "+utoa(count)+" exceeds "+utoa(uint32(b.CounterBits))+"-bit counter")
	}

	return ClockScale{
		PrescaleExponent: b.PrescaleExponent,
		CounterLimit:     uint16(count - 1),
	}, nil
}

// FindScale returns the first entry of the table, in ascending prescaler
// order, that can express freqHz. The first admissible entry is the one with
// the smallest prescaler and therefore the finest counter resolution; it is
// not necessarily the entry with the smallest frequency error.
func (c *Calculator) FindScale(freqHz uint32, t ScalingTable) (ClockScale, error) {
	if err := t.Validate(); err != nil {
		return ClockScale{}, err
	}
	if freqHz == 0 {
		return ClockScale{}, &Error{Op: "find scale", Kind: ErrZeroOperand, Detail: "frequency is zero"}
	}

	for i := range t.PrescaleExponents {
		scale, err := c.FindScaleForBound(freqHz, t.Bound(i))
		if err == nil {
			return scale, nil
		}
	}

	return ClockScale{}, unrepresentable("find scale", utoa(freqHz)+" Hz fits no table entry")
}

// RecoverFrequency returns the frequency in Hz that scale produces.
// The prescaler is applied as an exact right shift of the base clock.
func (c *Calculator) RecoverFrequency(s ClockScale) (uint32, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	scaled := c.baseClock >> s.PrescaleExponent
	return DivRound(scaled, uint32(s.CounterLimit)+1)
}

// TickDuration returns the length in microseconds of one prescaled clock
// cycle, truncated. When the prescaled clock is below 1 Hz the duration is
// reported as the largest uint32.
func (c *Calculator) TickDuration(exp uint8) uint32 {
	if exp > MaxPrescaleExponent {
		return ^uint32(0)
	}
	scaled := c.baseClock >> exp
	if scaled == 0 {
		return ^uint32(0)
	}
	return 1000000 / scaled
}

// MatchTickDuration returns the table exponent whose tick duration is closest
// to targetUs. Equal distances resolve to the larger exponent. The scan stops
// as soon as the distance starts growing, since tick durations increase
// monotonically with the exponent.
func (c *Calculator) MatchTickDuration(targetUs uint16, t ScalingTable) (uint8, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	best := t.PrescaleExponents[0]
	minDelta := ^uint32(0)
	prevDelta := minDelta
	target := uint32(targetUs)

	for _, exp := range t.PrescaleExponents {
		tick := c.TickDuration(exp)
		var delta uint32
		if tick > target {
			delta = tick - target
		} else {
			delta = target - tick
		}

		if c.debug != nil {
			c.trace("prescale=" + utoa(uint32(exp)) + " tick_us=" + utoa(tick) + " delta=" + utoa(delta))
		}

		if delta > prevDelta {
			break
		}
		if delta <= minDelta {
			minDelta = delta
			best = exp
		}
		prevDelta = delta
	}

	return best, nil
}
