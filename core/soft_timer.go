package core

import (
	"errors"

	"prescaler/scaling"
)

// SoftTimerDriver emulates prescaled timers on the event scheduler. Each
// timer toggles its output pin once per counter period, so the pin carries a
// square wave at half the programmed rate, the same as a compare-match
// toggle output in CTC mode.
type SoftTimerDriver struct {
	baseClock uint32
	pins      []GPIOPin
	timers    []*softTimer
}

type softTimer struct {
	Timer
	pin    GPIOPin
	period uint32
	level  bool
	active bool
}

// NewSoftTimerDriver emulates timers clocked at baseClockHz. pins[i] is the
// output of TimerID i.
func NewSoftTimerDriver(baseClockHz uint32, pins []GPIOPin) (*SoftTimerDriver, error) {
	d := &SoftTimerDriver{
		baseClock: baseClockHz,
		pins:      pins,
		timers:    make([]*softTimer, len(pins)),
	}
	for _, pin := range pins {
		if err := MustGPIO().ConfigureOutput(pin); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// PeriodTicks converts a scale to system ticks, at least one.
func (d *SoftTimerDriver) PeriodTicks(scale scaling.ClockScale) uint32 {
	ticks := scale.Cycles() * uint64(SystemTickFreq) / uint64(d.baseClock)
	if ticks == 0 {
		return 1
	}
	if ticks > 1<<31 {
		return 1 << 31
	}
	return uint32(ticks)
}

func (d *SoftTimerDriver) ApplyScale(timer TimerID, scale scaling.ClockScale) error {
	if int(timer) >= len(d.pins) {
		return errors.New("no pin for timer " + utoa(uint32(timer)))
	}
	if d.baseClock == 0 {
		return errors.New("soft timer base clock is zero")
	}

	st := d.timers[timer]
	if st == nil {
		st = &softTimer{pin: d.pins[timer]}
		st.Handler = st.toggle
		d.timers[timer] = st
	} else if st.active {
		RemoveTimer(&st.Timer)
	}

	st.period = d.PeriodTicks(scale)
	st.active = true
	st.WakeTime = GetTime() + st.period
	ScheduleTimer(&st.Timer)
	return nil
}

func (d *SoftTimerDriver) StopTimer(timer TimerID) error {
	if int(timer) >= len(d.timers) || d.timers[timer] == nil {
		return nil
	}
	st := d.timers[timer]
	if st.active {
		RemoveTimer(&st.Timer)
		st.active = false
	}
	st.level = false
	return MustGPIO().SetPin(st.pin, false)
}

func (st *softTimer) toggle(t *Timer) uint8 {
	if !st.active {
		return SF_DONE
	}
	st.level = !st.level
	_ = MustGPIO().SetPin(st.pin, st.level)
	t.WakeTime += st.period
	return SF_RESCHEDULE
}
