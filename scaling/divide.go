package scaling

// DivRound divides length by unit rounding to the nearest integer, halves
// rounding up: floor((2*length/unit + 1) / 2). Either operand being zero is an
// error. The intermediate doubling is done in 64 bits.
func DivRound(length, unit uint32) (uint32, error) {
	if length == 0 {
		return 0, &Error{Op: "divide", Kind: ErrZeroOperand, Detail: "length is zero"}
	}
	if unit == 0 {
		return 0, &Error{Op: "divide", Kind: ErrZeroOperand, Detail: "unit is zero"}
	}
	l, u := uint64(length), uint64(unit)
	return uint32((2*l/u + 1) / 2), nil
}

// MaxCounterValue returns the largest counter limit the bound accepts,
// 2^CounterBits - 1. A zero-bit counter yields 0.
func MaxCounterValue(b ScaleBound) (uint16, error) {
	if err := b.Validate(); err != nil {
		return 0, err
	}
	return uint16(b.counterCapacity() - 1), nil
}
