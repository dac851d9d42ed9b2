//go:build !tinygo

package core

// Hosted builds have no interrupts; callers serialize through their own
// locks (see host/sim).
type irqState struct{}

func irqSave() irqState { return irqState{} }

func irqRestore(irqState) {}
