package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCalculatorCommands(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"find", []string{"find", "1kHz", "--table", "counter1"}, []string{"prescale=6 (/64) limit=249 actual=1000Hz"}},
		{"find all", []string{"find", "1", "--all"}, []string{"counter2", "prescale=8 (/256) limit=62499 actual=1Hz", "counter1"}},
		{"recover", []string{"recover", "6", "249"}, []string{"1000Hz"}},
		{"recover clock", []string{"--clock", "8MHz", "recover", "0", "0"}, []string{"8000000Hz"}},
		{"match", []string{"match", "4"}, []string{"prescale=6 (/64) tick=4us"}},
		{"max bits", []string{"max", "--bits", "12"}, []string{"4095"}},
		{"max table", []string{"max", "--table", "counter1"}, []string{"255"}},
		{"baud", []string{"baud", "9600", "115200"}, []string{"U2X=1 UBRR=207", "UBRR=16"}},
		{"tables", []string{"tables"}, []string{"counter3", "/128", "12-bit"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if err != nil {
				t.Fatalf("%v: %v\n%s", tt.args, err, out)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("%v output missing %q:\n%s", tt.args, w, out)
				}
			}
		})
	}
}

func TestCalculatorErrors(t *testing.T) {
	tests := [][]string{
		{"find", "fast"},
		{"find", "1", "--table", "counter1"},
		{"find", "1", "--table", "nope"},
		{"recover", "17", "0"},
		{"recover", "0", "70000"},
		{"baud", "100"},
		{"max", "--bits", "17"},
		{"--clock", "0", "tables"},
	}

	for _, args := range tests {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("%v succeeded", args)
		}
	}
}

func TestConfigTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	content := "base_clock: 1MHz\ntables:\n  slow:\n    prescale_exponents: [2]\n    counter_bits: 4\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", path, "find", "15625", "--table", "slow")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !strings.Contains(out, "prescale=2 (/4) limit=15 actual=15625Hz") {
		t.Errorf("Unexpected output: %s", out)
	}
}

func TestSimCommand(t *testing.T) {
	out, err := execute(t, "sim", "1kHz", "--timer", "counter1")
	if err != nil {
		t.Fatalf("sim: %v", err)
	}
	for _, w := range []string{"prescale=6 limit=249 freq=1000Hz running", "measured=1000.0Hz"} {
		if !strings.Contains(out, w) {
			t.Errorf("sim output missing %q:\n%s", w, out)
		}
	}
}

func TestMCUCommandsSimulated(t *testing.T) {
	out, err := execute(t, "mcu", "query", "--sim", "--oid", "2")
	if err != nil {
		t.Fatalf("mcu query: %v", err)
	}
	if !strings.Contains(out, "oid=2") || !strings.Contains(out, "stopped") {
		t.Errorf("query output: %s", out)
	}

	out, err = execute(t, "mcu", "frequency", "1kHz", "--sim")
	if err != nil {
		t.Fatalf("mcu frequency: %v", err)
	}
	if !strings.Contains(out, "freq=1000Hz running") {
		t.Errorf("frequency output: %s", out)
	}

	if _, err := execute(t, "mcu", "frequency", "1", "--sim"); err == nil {
		t.Error("1 Hz on the 8-bit timer should fail")
	}

	out, err = execute(t, "mcu", "dict", "--sim")
	if err != nil {
		t.Fatalf("mcu dict: %v", err)
	}
	if !strings.Contains(out, "clock: 16000000Hz") || !strings.Contains(out, "set_timer_frequency oid=%c freq=%u") {
		t.Errorf("dict output: %s", out)
	}
}
