package specs

import (
	"errors"

	"prescaler/scaling"
)

// PIOTimer is an RP2040 PIO state machine used as a scaled timer. The
// prescaler is the state machine's integer clock divider, limited here to
// powers of four so the table fits seven entries.
var PIOTimer = scaling.ScalingTable{
	PrescaleExponents: []uint8{0, 2, 4, 6, 8, 10, 12},
	CounterBits:       16,
}

const NamePIOTimer = "pio"

// PIOLoopOverhead is the number of cycles each half period of the square
// wave program spends outside its delay loop. A loop count X gives a half
// period of X+PIOLoopOverhead cycles.
const PIOLoopOverhead = 7

// PIOLoopCount returns the loop count that makes each half period of the
// square wave last CounterLimit+1 divided cycles.
func PIOLoopCount(s scaling.ClockScale) (uint32, error) {
	// The integer part of the divider is 16 bits wide.
	if s.PrescaleExponent > 15 {
		return 0, errors.New("PIO clock divider exceeds 16 bits")
	}
	half := uint32(s.CounterLimit) + 1
	if half < PIOLoopOverhead {
		return 0, errors.New("PIO timer needs limit >= 6")
	}
	return half - PIOLoopOverhead, nil
}
