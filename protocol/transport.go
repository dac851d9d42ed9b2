package protocol

import "sync/atomic"

// CommandHandler decodes and executes one command. It must consume exactly
// its own arguments from data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the firmware side of the link. It validates incoming blocks,
// dispatches their commands in order and answers every block with an ACK
// carrying the next expected sequence number.
type Transport struct {
	scanner       frameScanner
	nextSequence  uint32 // atomic, 0x10-0x1F
	output        OutputBuffer
	handler       CommandHandler
	errorHandler  func(cmdID uint16, err error)
	resetCallback func()
	flushCallback func()
}

// NewTransport returns a synchronized transport writing to output.
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		nextSequence: MessageDest,
		output:       output,
		handler:      handler,
	}
	t.scanner.setSynchronized(true)
	t.scanner.onResync = t.encodeAckNak
	return t
}

// Receive consumes complete blocks from input.
func (t *Transport) Receive(input InputBuffer) {
	consumed := t.scanner.scan(input.Data(), t.receiveBlock)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

func (t *Transport) receiveBlock(block []byte) {
	seq := block[MessagePositionSeq]
	frame := block[MessageHeaderSize : len(block)-MessageTrailerSize]

	expected := uint8(atomic.LoadUint32(&t.nextSequence))
	if seq == MessageDest && expected != MessageDest {
		// Host restarted its sequence.
		atomic.StoreUint32(&t.nextSequence, MessageDest)
		expected = MessageDest
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}

	// Out of order blocks are dropped; the ACK below then acts as a NAK.
	if seq == expected {
		atomic.StoreUint32(&t.nextSequence, uint32(nextSeq(seq)))
		t.parseFrame(frame)
	}
	t.encodeAckNak()
}

// parseFrame dispatches every command in frame. A handler error stops the
// rest of the frame; a handler panic also drops synchronization.
func (t *Transport) parseFrame(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.scanner.setSynchronized(false)
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.scanner.setSynchronized(false)
			return
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			if t.errorHandler != nil {
				t.errorHandler(uint16(cmdID), err)
			}
			return
		}
	}
}

// encodeAckNak writes an empty block carrying the next expected sequence
// and flushes it immediately.
func (t *Transport) encodeAckNak() {
	seq := uint8(atomic.LoadUint32(&t.nextSequence))
	encodeBlock(t.output, seq, func(OutputBuffer) {})
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// SendCommand encodes one message (response) block.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	seq := uint8(atomic.LoadUint32(&t.nextSequence))
	encodeBlock(t.output, seq, func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns the transport to its power-on state.
func (t *Transport) Reset() {
	t.scanner.setSynchronized(true)
	atomic.StoreUint32(&t.nextSequence, MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback is called when the host restarts its sequence numbers.
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback is called after every ACK to push pending output to the host.
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// SetErrorHandler is called with the command id and error of a failed handler.
func (t *Transport) SetErrorHandler(handler func(cmdID uint16, err error)) {
	t.errorHandler = handler
}
