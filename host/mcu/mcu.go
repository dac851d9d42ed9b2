// Package mcu is the host side of a prescaler firmware session: it fetches
// the data dictionary and drives the scaled timers.
package mcu

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"prescaler/host/logger"
	"prescaler/host/serial"
	"prescaler/protocol"
)

const (
	identifyChunk = 40
	maxChunks     = 1000

	// identify is sent before the dictionary is known, so its id is fixed.
	identifyCmdID      = 1
	identifyResponseID = 0
)

// DefaultResponseTimeout bounds the wait for a reply to a command.
var DefaultResponseTimeout = time.Second

// ErrNotConnected is returned by calls made before Connect.
var ErrNotConnected = errors.New("not connected to MCU")

// MCU is a connection to a prescaler firmware.
type MCU struct {
	transport *protocol.HostTransport
	port      io.ReadWriteCloser

	dictionary     *Dictionary
	dictionaryData []byte

	// Message name -> id, built from the dictionary's "name format" keys.
	commandIDs  map[string]uint16
	responseIDs map[string]uint16
	responses   map[uint16]string

	connected bool
}

// Dictionary is the parsed data dictionary.
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

func NewMCU() *MCU {
	return &MCU{}
}

// Connect opens device with the default serial settings.
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return err
	}
	logger.Debug("opened %s at %d baud", cfg.Device, cfg.Baud)

	m.Attach(port)

	// A board that just enumerated may still be booting.
	time.Sleep(100 * time.Millisecond)
	return nil
}

// Attach runs the session over an already open port.
func (m *MCU) Attach(port io.ReadWriteCloser) {
	m.port = port
	m.transport = protocol.NewHostTransport(port)
	m.transport.SetResponseHandler(m.handleResponse)
	m.connected = true
}

// Close ends the session and closes the port.
func (m *MCU) Close() error {
	if m.transport == nil {
		return nil
	}
	m.connected = false
	return m.transport.Close()
}

func (m *MCU) IsConnected() bool {
	return m.connected
}

// RetrieveDictionary reads the dictionary in identify chunks until a short
// chunk ends it.
func (m *MCU) RetrieveDictionary() error {
	if !m.connected {
		return ErrNotConnected
	}

	var buf bytes.Buffer
	offset := uint32(0)
	for i := 0; i < maxChunks; i++ {
		chunk, err := m.sendIdentify(offset, identifyChunk)
		if err != nil {
			return fmt.Errorf("dictionary chunk at offset %d: %w", offset, err)
		}
		buf.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < identifyChunk {
			break
		}
	}
	logger.Debug("dictionary: %d bytes", buf.Len())

	if err := m.parseDictionary(buf.Bytes()); err != nil {
		return fmt.Errorf("parse dictionary: %w", err)
	}
	return nil
}

func (m *MCU) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	m.transport.DrainResponses()
	err := m.transport.SendCommand(identifyCmdID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})
	if err != nil {
		return nil, fmt.Errorf("send identify: %w", err)
	}

	resp, err := m.transport.ReceiveResponse(DefaultResponseTimeout)
	if err != nil {
		return nil, fmt.Errorf("receive identify_response: %w", err)
	}

	payload := resp.Payload
	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, err
	}
	if cmdID != identifyResponseID {
		return nil, fmt.Errorf("unexpected response id %d", cmdID)
	}
	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, err
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}
	return protocol.DecodeVLQBytes(&payload)
}

func (m *MCU) parseDictionary(data []byte) error {
	dict := &Dictionary{}
	if err := json.Unmarshal(data, dict); err != nil {
		return err
	}

	m.commandIDs = indexByName(dict.Commands)
	m.responseIDs = indexByName(dict.Responses)
	m.responses = make(map[uint16]string, len(m.responseIDs))
	for name, id := range m.responseIDs {
		m.responses[id] = name
	}
	m.dictionary = dict
	m.dictionaryData = append([]byte(nil), data...)
	return nil
}

// indexByName maps "set_timer_tick oid=%c tick_us=%hu" style keys to the
// bare message name.
func indexByName(formats map[string]int) map[string]uint16 {
	ids := make(map[string]uint16, len(formats))
	for format, id := range formats {
		name, _, _ := strings.Cut(format, " ")
		ids[name] = uint16(id)
	}
	return ids
}

// handleResponse logs asynchronous firmware reports.
func (m *MCU) handleResponse(cmdID uint16, data *[]byte) error {
	if m.responses[cmdID] != "shutdown" {
		return nil
	}
	payload := *data
	reason, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return err
	}
	logger.Error("MCU shutdown: %s", reason)
	return nil
}

func (m *MCU) Dictionary() *Dictionary {
	return m.dictionary
}

// DictionaryRaw returns the dictionary JSON as received.
func (m *MCU) DictionaryRaw() []byte {
	return m.dictionaryData
}

// CommandID resolves a command name.
func (m *MCU) CommandID(name string) (uint16, bool) {
	id, ok := m.commandIDs[name]
	return id, ok
}

// ResponseID resolves a response name.
func (m *MCU) ResponseID(name string) (uint16, bool) {
	id, ok := m.responseIDs[name]
	return id, ok
}

// ClockFreq returns the CLOCK_FREQ constant.
func (m *MCU) ClockFreq() (uint32, error) {
	if m.dictionary == nil {
		return 0, errors.New("dictionary not loaded")
	}
	v, ok := m.dictionary.Config["CLOCK_FREQ"]
	if !ok {
		return 0, errors.New("dictionary has no CLOCK_FREQ")
	}
	hz, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("CLOCK_FREQ %q: %w", v, err)
	}
	return uint32(hz), nil
}

// Timers returns the firmware's timer names in id order.
func (m *MCU) Timers() []string {
	if m.dictionary == nil {
		return nil
	}
	enum := m.dictionary.Enumerations["timer"]
	names := make([]string, 0, len(enum))
	for name := range enum {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return enum[names[i]] < enum[names[j]] })
	return names
}

// SendCommand sends a named command and waits for its ACK.
func (m *MCU) SendCommand(name string, args func(output protocol.OutputBuffer)) error {
	if !m.connected {
		return ErrNotConnected
	}
	if m.dictionary == nil {
		return errors.New("dictionary not loaded")
	}
	cmdID, ok := m.commandIDs[name]
	if !ok {
		return fmt.Errorf("unknown command: %s", name)
	}
	logger.Debug("send %s (id %d)", name, cmdID)
	return m.transport.SendCommand(cmdID, args)
}

// Send is SendCommand for commands whose arguments are all integers.
func (m *MCU) Send(name string, args ...uint32) error {
	return m.SendCommand(name, func(output protocol.OutputBuffer) {
		for _, a := range args {
			protocol.EncodeVLQUint(output, a)
		}
	})
}

// Config is the reply to get_config.
type Config struct {
	IsConfig   bool
	CRC        uint32
	IsShutdown bool
}

// GetConfig queries the configuration handshake state.
func (m *MCU) GetConfig() (Config, error) {
	m.transport.DrainResponses()
	if err := m.Send("get_config"); err != nil {
		return Config{}, err
	}
	args, err := m.awaitResponse("config", 3)
	if err != nil {
		return Config{}, err
	}
	return Config{IsConfig: args[0] != 0, CRC: args[1], IsShutdown: args[2] != 0}, nil
}

// ConfigReset forgets every configured timer on the MCU.
func (m *MCU) ConfigReset() error {
	return m.Send("config_reset")
}

// EmergencyStop shuts the firmware down.
func (m *MCU) EmergencyStop() error {
	return m.Send("emergency_stop")
}

// awaitResponse waits for the named response and decodes n integer
// arguments. Other responses are skipped.
func (m *MCU) awaitResponse(name string, n int) ([]uint32, error) {
	want, ok := m.responseIDs[name]
	if !ok {
		return nil, fmt.Errorf("unknown response: %s", name)
	}
	deadline := time.Now().Add(DefaultResponseTimeout)
	for {
		id, payload, err := m.nextResponse(time.Until(deadline))
		if err != nil {
			return nil, fmt.Errorf("wait for %s: %w", name, err)
		}
		if id == want {
			return decodeArgs(payload, n)
		}
	}
}

func (m *MCU) nextResponse(timeout time.Duration) (uint16, []byte, error) {
	if timeout <= 0 {
		return 0, nil, errors.New("timeout")
	}
	resp, err := m.transport.ReceiveResponse(timeout)
	if err != nil {
		return 0, nil, err
	}
	payload := resp.Payload
	id, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return 0, nil, err
	}
	return uint16(id), payload, nil
}

func decodeArgs(payload []byte, n int) ([]uint32, error) {
	args := make([]uint32, n)
	for i := range args {
		v, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}
