//go:build !wasm

package serial

import (
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Device       string
	USB          bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Known USB vendor ids of boards that run the firmware.
var knownVendors = map[string]string{
	"2E8A": "Raspberry Pi",
	"2341": "Arduino",
	"1A86": "CH340",
	"0403": "FTDI",
}

// String formats the port as one line of `prescaler ports` output.
func (p PortInfo) String() string {
	if !p.USB {
		return p.Device
	}
	s := fmt.Sprintf("%s  usb %s:%s", p.Device, p.VID, p.PID)
	if vendor, ok := knownVendors[strings.ToUpper(p.VID)]; ok {
		s += "  " + vendor
	}
	if p.Product != "" {
		s += "  " + p.Product
	}
	if p.SerialNumber != "" {
		s += "  sn=" + p.SerialNumber
	}
	return s
}

// ListPorts enumerates serial ports, USB devices first.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Device:       d.Name,
			USB:          d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	sortPorts(ports)
	return ports, nil
}

func sortPorts(ports []PortInfo) {
	sort.SliceStable(ports, func(i, j int) bool {
		if ports[i].USB != ports[j].USB {
			return ports[i].USB
		}
		return ports[i].Device < ports[j].Device
	})
}
