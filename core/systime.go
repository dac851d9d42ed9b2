package core

// SystemTickFreq is the rate of the free-running tick counter behind
// GetTime and the event scheduler.
var SystemTickFreq uint32 = 1000000

var systemTicks uint32

// GetTime returns the current system time in ticks.
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime sets the system time. Targets call it from their tick source,
// tests and simulations call it directly.
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}

// TimerFromUS converts microseconds to ticks.
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * uint64(SystemTickFreq) / 1000000)
}

// TimerToUS converts ticks to microseconds.
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / uint64(SystemTickFreq))
}

// ProcessTimers runs every scheduled event that is due at the current time.
func ProcessTimers() {
	TimerDispatch(GetTime())
}
