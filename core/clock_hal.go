package core

import "prescaler/scaling"

// TimerID identifies a prescaled hardware timer in registration order.
type TimerID uint8

// TimerDriver programs prescaled timers. Targets implement it on top of
// their timer or PIO hardware.
type TimerDriver interface {
	// ApplyScale loads the prescaler and counter limit and starts the timer.
	ApplyScale(timer TimerID, scale scaling.ClockScale) error

	// StopTimer halts the timer and leaves its output idle.
	StopTimer(timer TimerID) error
}

var timerDriver TimerDriver

// SetTimerDriver is called by target code to register its driver.
func SetTimerDriver(d TimerDriver) {
	timerDriver = d
}

// MustTimer returns the configured driver or panics if missing.
func MustTimer() TimerDriver {
	if timerDriver == nil {
		panic("timer driver not configured")
	}
	return timerDriver
}
