package scaling

import "errors"

// Error kinds. Match them with errors.Is.
var (
	// ErrMalformed is returned for a bound, table or scale outside the supported ranges.
	ErrMalformed = errors.New("malformed scale description")

	// ErrUnrepresentable is returned when no prescaler/counter pair can express the target.
	ErrUnrepresentable = errors.New("frequency not representable")

	// ErrZeroOperand is returned when a division would use a zero operand.
	ErrZeroOperand = errors.New("zero operand")
)

// Error records the operation that failed and why.
type Error struct {
	Op     string
	Kind   error
	Detail string
}

func (e *Error) Error() string {
	msg := "scaling: " + e.Op + ": " + e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the error kind.
func (e *Error) Unwrap() error {
	return e.Kind
}

func malformed(op, detail string) error {
	return &Error{Op: op, Kind: ErrMalformed, Detail: detail}
}

func unrepresentable(op, detail string) error {
	return &Error{Op: op, Kind: ErrUnrepresentable, Detail: detail}
}
