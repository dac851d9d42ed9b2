package core

// Timer is a scheduled event. Handler returns SF_RESCHEDULE after moving
// WakeTime forward to run again.
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var timerList *Timer

// ScheduleTimer adds t to the schedule, ordered by WakeTime.
func ScheduleTimer(t *Timer) {
	s := irqSave()
	defer irqRestore(s)
	insertTimer(t)
}

// RemoveTimer takes t off the schedule if it is queued.
func RemoveTimer(t *Timer) {
	s := irqSave()
	defer irqRestore(s)

	for p := &timerList; *p != nil; p = &(*p).Next {
		if *p == t {
			*p = t.Next
			t.Next = nil
			return
		}
	}
}

// insertTimer keeps equal wake times in insertion order.
func insertTimer(t *Timer) {
	p := &timerList
	for *p != nil && timeBeforeEq((*p).WakeTime, t.WakeTime) {
		p = &(*p).Next
	}
	t.Next = *p
	*p = t
}

// timeBeforeEq compares tick counts across wraparound.
func timeBeforeEq(a, b uint32) bool {
	return int32(a-b) <= 0
}

// TimerDispatch runs every event due at or before now.
func TimerDispatch(now uint32) {
	s := irqSave()
	defer irqRestore(s)

	for timerList != nil && timeBeforeEq(timerList.WakeTime, now) {
		t := timerList
		timerList = t.Next
		t.Next = nil

		if t.Handler(t) == SF_RESCHEDULE {
			insertTimer(t)
		}
	}
}

// NextWakeTime reports the wake time of the earliest queued event.
func NextWakeTime() (uint32, bool) {
	s := irqSave()
	defer irqRestore(s)
	if timerList == nil {
		return 0, false
	}
	return timerList.WakeTime, true
}

// resetScheduler drops every queued event.
func resetScheduler() {
	s := irqSave()
	defer irqRestore(s)
	timerList = nil
}
