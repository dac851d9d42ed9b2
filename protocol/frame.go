package protocol

import "sync/atomic"

// blockState is the result of inspecting the bytes at the head of a stream.
type blockState uint8

const (
	blockNeedMore blockState = iota
	blockValid
	blockInvalid
)

// checkBlock validates the message block at the start of data.
// It returns the block length when the block is complete and intact.
func checkBlock(data []byte) (int, blockState) {
	if len(data) < MessageLengthMin {
		return 0, blockNeedMore
	}

	msgLen := int(data[MessagePositionLen])
	if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
		return 0, blockInvalid
	}
	if data[MessagePositionSeq]&^MessageSeqMask != MessageDest {
		return 0, blockInvalid
	}
	if len(data) < msgLen {
		return 0, blockNeedMore
	}
	if data[msgLen-MessageTrailerSync] != MessageValueSync {
		return 0, blockInvalid
	}

	crc := uint16(data[msgLen-MessageTrailerCRC])<<8 | uint16(data[msgLen-MessageTrailerCRC+1])
	if crc != CRC16(data[:msgLen-MessageTrailerSize]) {
		return 0, blockInvalid
	}
	return msgLen, blockValid
}

// frameScanner splits a byte stream into message blocks, dropping to a
// search for the next sync byte whenever a block fails validation.
type frameScanner struct {
	synchronized uint32 // atomic bool
	onResync     func()
}

func (s *frameScanner) isSynchronized() bool {
	return atomic.LoadUint32(&s.synchronized) != 0
}

func (s *frameScanner) setSynchronized(v bool) {
	var n uint32
	if v {
		n = 1
	}
	atomic.StoreUint32(&s.synchronized, n)
}

// scan walks data and calls onBlock for every valid block. It returns the
// number of bytes consumed; an incomplete trailing block is left unconsumed.
func (s *frameScanner) scan(data []byte, onBlock func(block []byte)) int {
	total := len(data)

	for len(data) > 0 {
		if !s.isSynchronized() {
			i := 0
			for i < len(data) && data[i] != MessageValueSync {
				i++
			}
			if i == len(data) {
				data = nil
				break
			}
			data = data[i+1:]
			s.setSynchronized(true)
			if s.onResync != nil {
				s.onResync()
			}
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		msgLen, state := checkBlock(data)
		if state == blockNeedMore {
			break
		}
		if state == blockInvalid {
			s.setSynchronized(false)
			continue
		}

		block := data[:msgLen]
		data = data[msgLen:]
		onBlock(block)
	}

	return total - len(data)
}

// encodeBlock writes one block with the given sequence byte to out.
func encodeBlock(out OutputBuffer, seq uint8, payload func(output OutputBuffer)) {
	cursor := out.CurPosition()
	out.Output([]byte{0, seq})
	payload(out)
	out.Update(cursor, uint8(len(out.DataSince(cursor))+MessageTrailerSize))
	appendTrailer(out, out.DataSince(cursor))
}
