// Package config loads the host tools' settings: the timer base clock,
// extra or overridden prescaler tables and the serial link to the MCU.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"prescaler/scaling"
	"prescaler/specs"
)

// DefaultBaseClock is the ATmega328P system clock on most boards.
const DefaultBaseClock = "16MHz"

type Config struct {
	// BaseClock is a frequency such as "16MHz" or "16000000".
	BaseClock string                 `yaml:"base_clock" json:"base_clock"`
	Tables    map[string]TableConfig `yaml:"tables" json:"tables"`
	Serial    SerialConfig           `yaml:"serial" json:"serial"`
}

// TableConfig describes one prescaled peripheral.
type TableConfig struct {
	PrescaleExponents []int `yaml:"prescale_exponents" json:"prescale_exponents"`
	CounterBits       int   `yaml:"counter_bits" json:"counter_bits"`
}

type SerialConfig struct {
	Device        string `yaml:"device" json:"device"`
	Baud          int    `yaml:"baud" json:"baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms" json:"read_timeout_ms"`
}

// Default returns a config for a 16 MHz board on /dev/ttyACM0.
func Default() *Config {
	return &Config{
		BaseClock: DefaultBaseClock,
		Tables:    map[string]TableConfig{},
		Serial: SerialConfig{
			Device:        "/dev/ttyACM0",
			Baud:          250000,
			ReadTimeoutMs: 100,
		},
	}
}

// Load reads a YAML or JSON config. Files ending in .json are JSON,
// anything else is YAML. Missing fields take their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.BaseClock == "" {
		cfg.BaseClock = def.BaseClock
	}
	if cfg.Tables == nil {
		cfg.Tables = def.Tables
	}
	if cfg.Serial.Device == "" {
		cfg.Serial.Device = def.Serial.Device
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = def.Serial.Baud
	}
	if cfg.Serial.ReadTimeoutMs == 0 {
		cfg.Serial.ReadTimeoutMs = def.Serial.ReadTimeoutMs
	}
}

// Validate checks the base clock and every configured table.
func (c *Config) Validate() error {
	if _, err := c.BaseClockHz(); err != nil {
		return err
	}
	for _, name := range c.tableNames() {
		if _, err := c.Tables[name].ScalingTable(); err != nil {
			return fmt.Errorf("table %q: %w", name, err)
		}
	}
	if c.Serial.Baud < 0 {
		return fmt.Errorf("serial baud %d is negative", c.Serial.Baud)
	}
	return nil
}

// BaseClockHz parses BaseClock.
func (c *Config) BaseClockHz() (uint32, error) {
	hz, err := ParseFrequency(c.BaseClock)
	if err != nil {
		return 0, fmt.Errorf("base_clock: %w", err)
	}
	if hz == 0 {
		return 0, errors.New("base_clock must be non-zero")
	}
	return hz, nil
}

// Table resolves name against the config first, then the built-in tables.
func (c *Config) Table(name string) (scaling.ScalingTable, error) {
	if tc, ok := c.Tables[name]; ok {
		return tc.ScalingTable()
	}
	if table, ok := specs.Lookup(name); ok {
		return table, nil
	}
	return scaling.ScalingTable{}, fmt.Errorf("unknown table %q (known: %s)", name, strings.Join(c.TableNames(), ", "))
}

// TableNames lists built-in and configured tables, sorted.
func (c *Config) TableNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, name := range specs.Names() {
		seen[name] = true
		names = append(names, name)
	}
	for name := range c.Tables {
		if !seen[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (c *Config) tableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScalingTable converts and validates the table.
func (tc TableConfig) ScalingTable() (scaling.ScalingTable, error) {
	if tc.CounterBits < 0 || tc.CounterBits > math.MaxUint8 {
		return scaling.ScalingTable{}, fmt.Errorf("counter_bits %d out of range", tc.CounterBits)
	}
	exps := make([]uint8, len(tc.PrescaleExponents))
	for i, e := range tc.PrescaleExponents {
		if e < 0 || e > math.MaxUint8 {
			return scaling.ScalingTable{}, fmt.Errorf("prescale exponent %d out of range", e)
		}
		exps[i] = uint8(e)
	}
	table := scaling.ScalingTable{PrescaleExponents: exps, CounterBits: uint8(tc.CounterBits)}
	if err := table.Validate(); err != nil {
		return scaling.ScalingTable{}, err
	}
	return table, nil
}

// ParseFrequency accepts a plain number of hertz or a value with an SI
// prefixed unit ("16MHz", "32.768kHz"). The result is rounded to whole hertz.
func ParseFrequency(s string) (uint32, error) {
	var f physic.Frequency
	if err := f.Set(strings.TrimSpace(s)); err != nil {
		return 0, fmt.Errorf("parse frequency %q: %w", s, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("frequency %q is negative", s)
	}
	hz := (f + physic.Hertz/2) / physic.Hertz
	if hz > math.MaxUint32 {
		return 0, fmt.Errorf("frequency %q exceeds %d Hz", s, uint32(math.MaxUint32))
	}
	return uint32(hz), nil
}

// FormatFrequency renders hz for display with an SI prefix, e.g. "16MHz".
// At most three fractional digits are kept.
func FormatFrequency(hz uint32) string {
	return (physic.Frequency(hz) * physic.Hertz).String()
}
