package protocol

// CRC16 is the CCITT variant used for block trailers, seeded with 0xFFFF.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc & 0xFF)
		b ^= b << 4
		b16 := uint16(b)
		crc = (b16<<8 | crc>>8) ^ (b16 >> 4) ^ (b16 << 3)
	}
	return crc
}

// appendTrailer appends the CRC of block followed by the sync byte.
func appendTrailer(out OutputBuffer, block []byte) {
	crc := CRC16(block)
	out.Output([]byte{uint8(crc >> 8), uint8(crc), MessageValueSync})
}
