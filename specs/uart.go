package specs

import "prescaler/scaling"

// UartSetting is a USART baud generator configuration.
type UartSetting struct {
	DoubleSpeed bool   // U2X0
	UBRR        uint16 // UBRR0 register value
	Actual      uint32 // Baud rate the setting produces
}

// UartBaud picks the USART setting for baud. Double speed wins whenever it
// can express the rate, matching FindScale's ascending table order.
func UartBaud(calc *scaling.Calculator, baud uint32) (UartSetting, error) {
	scale, err := calc.FindScale(baud, Uart)
	if err != nil {
		return UartSetting{}, err
	}
	actual, err := calc.RecoverFrequency(scale)
	if err != nil {
		return UartSetting{}, err
	}
	return UartSetting{
		DoubleSpeed: scale.PrescaleExponent == 3,
		UBRR:        scale.CounterLimit,
		Actual:      actual,
	}, nil
}

// ErrorPercent is the relative baud error against the requested rate.
func (s UartSetting) ErrorPercent(baud uint32) float64 {
	if baud == 0 {
		return 0
	}
	return (float64(s.Actual) - float64(baud)) * 100 / float64(baud)
}
