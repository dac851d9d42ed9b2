//go:build tinygo

package core

import "sync/atomic"

// The tick counter may be advanced from an interrupt handler.
func getSystemTicks() uint32 {
	return atomic.LoadUint32(&systemTicks)
}

func setSystemTicks(ticks uint32) {
	atomic.StoreUint32(&systemTicks, ticks)
}
