// Package sim runs the firmware core in-process behind a serial.Port.
// Timers are emulated on the core scheduler and their output pins are
// counted, so a host session can be checked without a board attached.
package sim

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"prescaler/core"
	"prescaler/host/logger"
	"prescaler/protocol"
	"prescaler/scaling"
	"prescaler/specs"
)

// The firmware core keeps its state in package globals, so one simulated
// firmware exists per process. fwMu serializes every call into it.
var (
	fwMu     sync.Mutex
	initOnce sync.Once
	initErr  error
	fwBase   uint32
	fwTimers []string
	fwPins   *pinCounter
)

// MCU is a simulated board. Bytes written are handled by the firmware
// transport; its ACKs and responses come back through Read.
type MCU struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []byte
	closed  bool

	fw  *protocol.Transport
	out *protocol.ScratchOutput
}

// New starts a session with the simulated firmware, clocked at
// baseClockHz and carrying the built-in timer tables. Every session starts
// from a reset firmware.
//
// The firmware in core keeps its command registry, dictionary and
// calculator in package globals, the same way it runs on a single MCU, so
// one process hosts one simulated chip. The first call fixes its base
// clock; a later call with another clock fails. Calculators on the host
// side (scaling.NewCalculator) take any clock per call.
func New(baseClockHz uint32) (*MCU, error) {
	if err := initFirmware(baseClockHz); err != nil {
		return nil, err
	}
	if baseClockHz != fwBase {
		return nil, fmt.Errorf("simulated firmware already runs at %d Hz", fwBase)
	}

	m := &MCU{out: protocol.NewScratchOutput()}
	m.cond = sync.NewCond(&m.mu)
	m.fw = protocol.NewTransport(m.out, core.DispatchCommand)
	m.fw.SetErrorHandler(func(cmdID uint16, err error) {
		logger.Debug("sim: command %d: %v", cmdID, err)
	})

	fwMu.Lock()
	defer fwMu.Unlock()
	core.SetGlobalTransport(m.fw)
	core.StopAllScaledTimers()
	core.ResetScaledTimers()
	core.ResetFirmwareState()
	fwPins.reset()
	return m, nil
}

func initFirmware(baseClockHz uint32) error {
	initOnce.Do(func() {
		if baseClockHz == 0 {
			initErr = errors.New("simulated base clock is zero")
			return
		}
		fwBase = baseClockHz
		fwPins = newPinCounter()

		core.SetDebugWriter(logger.DebugLine)
		core.SetDebugEnabled(logger.Verbose)
		core.SetGPIODriver(fwPins)

		var pins []core.GPIOPin
		for _, name := range specs.Names() {
			table, _ := specs.Lookup(name)
			id, err := core.RegisterTimerTable(name, table)
			if err != nil {
				initErr = fmt.Errorf("register %s: %w", name, err)
				return
			}
			pins = append(pins, core.GPIOPin(id))
			fwTimers = append(fwTimers, name)
		}

		driver, err := core.NewSoftTimerDriver(baseClockHz, pins)
		if err != nil {
			initErr = err
			return
		}
		core.SetTimerDriver(driver)

		core.InitCoreCommands()
		core.InitClockCommands(scaling.NewCalculator(baseClockHz, scaling.WithDebugWriter(core.ScaleTrace)))

		dict := core.GetGlobalDictionary()
		dict.SetVersion(protocol.Version)
		dict.SetBuildVersions("sim")
		core.RegisterConstant("MCU", "sim")
		dict.BuildDictionary()
	})
	return initErr
}

func (m *MCU) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, io.ErrClosedPipe
	}

	fwMu.Lock()
	m.out.Reset()
	m.fw.Receive(protocol.NewSliceInputBuffer(append([]byte(nil), b...)))
	m.pending = append(m.pending, m.out.Result()...)
	fwMu.Unlock()

	m.cond.Broadcast()
	return len(b), nil
}

// Read blocks until the firmware has output or the MCU is closed.
func (m *MCU) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.pending) == 0 && !m.closed {
		m.cond.Wait()
	}
	if len(m.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(b, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (m *MCU) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
	return nil
}

func (m *MCU) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	return nil
}

// Advance runs the firmware scheduler forward by d, jumping from one
// timer event to the next.
func (m *MCU) Advance(d time.Duration) {
	fwMu.Lock()
	defer fwMu.Unlock()

	end := core.GetTime() + core.TimerFromUS(uint32(d/time.Microsecond))
	for {
		wake, ok := core.NextWakeTime()
		if !ok || int32(wake-end) > 0 {
			break
		}
		core.SetTime(wake)
		core.ProcessTimers()
	}
	core.SetTime(end)
}

// Edges returns how many times the output of the named timer has toggled
// since the session started.
func (m *MCU) Edges(timer string) (uint64, error) {
	for i, name := range fwTimers {
		if name == timer {
			fwMu.Lock()
			defer fwMu.Unlock()
			return fwPins.edges(core.GPIOPin(i)), nil
		}
	}
	return 0, fmt.Errorf("unknown timer %q", timer)
}

// Timers lists the simulated timers in TimerID order.
func Timers() []string {
	return append([]string(nil), fwTimers...)
}

// pinCounter is the simulated GPIO bank. It records the level and the
// number of level changes of each pin.
type pinCounter struct {
	level map[core.GPIOPin]bool
	count map[core.GPIOPin]uint64
}

func newPinCounter() *pinCounter {
	return &pinCounter{level: make(map[core.GPIOPin]bool), count: make(map[core.GPIOPin]uint64)}
}

func (p *pinCounter) ConfigureOutput(pin core.GPIOPin) error {
	p.level[pin] = false
	return nil
}

func (p *pinCounter) SetPin(pin core.GPIOPin, value bool) error {
	if p.level[pin] != value {
		p.count[pin]++
	}
	p.level[pin] = value
	return nil
}

func (p *pinCounter) edges(pin core.GPIOPin) uint64 {
	return p.count[pin]
}

func (p *pinCounter) reset() {
	for pin := range p.count {
		p.count[pin] = 0
	}
}
