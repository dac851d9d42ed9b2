package core

// GPIOPin is a target pin number as seen by the software timer driver.
type GPIOPin uint32

// GPIODriver is the pin access SoftTimerDriver needs: outputs only.
type GPIODriver interface {
	ConfigureOutput(pin GPIOPin) error
	SetPin(pin GPIOPin, value bool) error
}

var gpioDriver GPIODriver

// SetGPIODriver registers the pin driver. Passing nil unregisters it.
func SetGPIODriver(d GPIODriver) { gpioDriver = d }

func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("core: no GPIO driver registered")
	}
	return gpioDriver
}
