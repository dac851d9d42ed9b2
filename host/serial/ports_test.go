package serial

import (
	"strings"
	"testing"
)

func TestSortPorts(t *testing.T) {
	ports := []PortInfo{
		{Device: "/dev/ttyS0"},
		{Device: "/dev/ttyUSB0", USB: true, VID: "1a86", PID: "7523"},
		{Device: "/dev/ttyACM0", USB: true, VID: "2e8a", PID: "000a"},
	}
	sortPorts(ports)

	want := []string{"/dev/ttyACM0", "/dev/ttyUSB0", "/dev/ttyS0"}
	for i, w := range want {
		if ports[i].Device != w {
			t.Errorf("ports[%d] = %s, want %s", i, ports[i].Device, w)
		}
	}
}

func TestPortInfoString(t *testing.T) {
	p := PortInfo{Device: "/dev/ttyACM0", USB: true, VID: "2e8a", PID: "000a", SerialNumber: "E660"}
	got := p.String()
	for _, part := range []string{"/dev/ttyACM0", "usb 2e8a:000a", "Raspberry Pi", "sn=E660"} {
		if !strings.Contains(got, part) {
			t.Errorf("String() = %q, missing %q", got, part)
		}
	}

	if got := (PortInfo{Device: "/dev/ttyS0"}).String(); got != "/dev/ttyS0" {
		t.Errorf("String() = %q", got)
	}
}

func TestOpenRequiresDevice(t *testing.T) {
	if _, err := Open(nil); err == nil {
		t.Error("Open(nil) succeeded")
	}
	if _, err := Open(&Config{}); err == nil {
		t.Error("Open without device succeeded")
	}
}
