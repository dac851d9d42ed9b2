//go:build tinygo

package core

import "runtime/interrupt"

type irqState = interrupt.State

// irqSave masks interrupts and returns the previous mask for irqRestore.
func irqSave() irqState { return interrupt.Disable() }

func irqRestore(s irqState) { interrupt.Restore(s) }
