package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTransportClosed is returned by calls made after Close.
var ErrTransportClosed = errors.New("transport stopped")

// DefaultAckTimeout bounds SendCommand.
const DefaultAckTimeout = 2 * time.Second

// ResponseHandler is called from the read loop for every response block.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// HostTransport is the host side of the link. Commands are sent one at a
// time and each waits for the firmware ACK; responses are queued for
// ReceiveResponse.
type HostTransport struct {
	port io.ReadWriteCloser

	currentSeq uint32 // atomic, 0x10-0x1F
	scanner    frameScanner

	inputBuffer  *FifoBuffer
	outputBuffer *bytes.Buffer

	ackChan      chan *Message
	responseChan chan *Message

	responseHandler ResponseHandler

	writeMutex sync.Mutex
	readMutex  sync.Mutex

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewHostTransport starts the background reader on port.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		currentSeq:   MessageDest,
		inputBuffer:  NewFifoBuffer(1024),
		outputBuffer: bytes.NewBuffer(make([]byte, 0, MessageLengthMax)),
		ackChan:      make(chan *Message, 1),
		responseChan: make(chan *Message, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	t.scanner.setSynchronized(true)

	go t.readLoop()

	return t
}

// SendCommand sends a command and waits for its ACK.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultAckTimeout)
}

// SendCommandWithTimeout sends a command with a custom ACK timeout.
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	msg, err := t.buildCommandMessage(cmdID, args)
	if err != nil {
		return fmt.Errorf("build command: %w", err)
	}

	t.drainAcks()
	if err := t.writeMessage(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	if err := t.waitForAck(timeout); err != nil {
		return fmt.Errorf("wait for ack: %w", err)
	}
	return nil
}

// buildCommandMessage encodes a complete block. Caller holds writeMutex.
func (t *HostTransport) buildCommandMessage(cmdID uint16, args func(output OutputBuffer)) ([]byte, error) {
	scratch := NewScratchOutput()
	seq := uint8(atomic.LoadUint32(&t.currentSeq))
	encodeBlock(scratch, seq, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})

	block := scratch.Result()
	if len(block) > MessageLengthMax {
		return nil, fmt.Errorf("message too long: %d bytes (max %d)", len(block), MessageLengthMax)
	}

	t.outputBuffer.Reset()
	t.outputBuffer.Write(block)
	return t.outputBuffer.Bytes(), nil
}

func (t *HostTransport) writeMessage(msg []byte) error {
	n, err := t.port.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}
	return nil
}

func (t *HostTransport) drainAcks() {
	for {
		select {
		case <-t.ackChan:
		default:
			return
		}
	}
}

// waitForAck expects an ACK naming the sequence after the one just sent.
// Any other sequence is a NAK.
func (t *HostTransport) waitForAck(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	sent := uint8(atomic.LoadUint32(&t.currentSeq))
	want := nextSeq(sent)

	select {
	case ack := <-t.ackChan:
		if ack.Sequence != want {
			return fmt.Errorf("nak: expected sequence 0x%02x, got 0x%02x", want, ack.Sequence)
		}
		atomic.StoreUint32(&t.currentSeq, uint32(want))
		return nil

	case <-timer.C:
		return fmt.Errorf("ack timeout after %v", timeout)

	case <-t.stopChan:
		return ErrTransportClosed
	}
}

// ReceiveResponse returns the oldest queued response.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-t.responseChan:
		return resp, nil

	case <-timer.C:
		return nil, fmt.Errorf("response timeout after %v", timeout)

	case <-t.stopChan:
		return nil, ErrTransportClosed
	}
}

// DrainResponses discards queued responses.
func (t *HostTransport) DrainResponses() {
	for {
		select {
		case <-t.responseChan:
		default:
			return
		}
	}
}

// SetResponseHandler installs a callback run for every response block.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()
	t.responseHandler = handler
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.inputBuffer.Write(buffer[:n])
			t.processMessages()
		}
		if err != nil {
			// Read timeouts surface as io.EOF on some platforms; a closed
			// port is noticed through stopChan.
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (t *HostTransport) processMessages() {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	consumed := t.scanner.scan(t.inputBuffer.Data(), func(block []byte) {
		msgLen := len(block)
		payload := make([]byte, msgLen-MessageHeaderSize-MessageTrailerSize)
		copy(payload, block[MessageHeaderSize:msgLen-MessageTrailerSize])

		t.dispatchMessage(&Message{
			Length:   block[MessagePositionLen],
			Sequence: block[MessagePositionSeq],
			Payload:  payload,
			CRC:      uint16(block[msgLen-MessageTrailerCRC])<<8 | uint16(block[msgLen-MessageTrailerCRC+1]),
		})
	})
	t.inputBuffer.Pop(consumed)
}

func (t *HostTransport) dispatchMessage(msg *Message) {
	if msg.IsAck() {
		select {
		case t.ackChan <- msg:
		default:
			// Keep the newest ACK.
			select {
			case <-t.ackChan:
			default:
			}
			t.ackChan <- msg
		}
		return
	}

	if t.responseHandler != nil {
		payload := msg.Payload
		if cmdID, err := DecodeVLQUint(&payload); err == nil {
			_ = t.responseHandler(uint16(cmdID), &payload)
		}
	}

	select {
	case t.responseChan <- msg:
	default:
		// Queue full, drop the oldest.
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// Close stops the read loop and closes the port. The port is closed first
// so a blocked Read returns.
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}

// Reset restarts the sequence numbers and discards buffered input.
func (t *HostTransport) Reset() {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	t.scanner.setSynchronized(true)
	atomic.StoreUint32(&t.currentSeq, MessageDest)
	t.drainAcks()
	t.DrainResponses()
	t.inputBuffer.Reset()
}

// CurrentSequence returns the sequence byte the next command will carry.
func (t *HostTransport) CurrentSequence() uint8 {
	return uint8(atomic.LoadUint32(&t.currentSeq))
}
