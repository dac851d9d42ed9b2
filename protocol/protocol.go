// Package protocol implements the framed command protocol spoken between the
// prescaler host tools and timer firmware: VLQ encoded integers inside CRC16
// protected message blocks with 4-bit sequence numbers.
package protocol

// Version is the protocol revision reported in the data dictionary.
const Version = "prescaler-0.2.0"

// Block layout: len seq payload... crc_hi crc_lo sync
const (
	MessageMax         = 512 // Scratch output capacity, several blocks per flush
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F
)

// nextSeq advances a sequence byte within 0x10-0x1F.
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// Message is one decoded message block.
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // Frame data without header/trailer
	CRC      uint16
}

// IsAck reports whether the block carries no payload.
func (m *Message) IsAck() bool {
	return len(m.Payload) == 0
}
