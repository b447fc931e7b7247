package encoding

import "encoding/binary"

// FixedLengthInteger encodes value as a little-endian integer of the given
// size. byteSize must be one of 1, 2, 3, 4, 6, 8.
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_basic_dt_integers.html#sect_protocol_basic_dt_int_fixed
func FixedLengthInteger(value uint64, byteSize int) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, value)
	return b[:byteSize]
}

// LengthEncodeInteger encodes value as int<lenenc>.
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_basic_dt_integers.html#sect_protocol_basic_dt_int_le
func LengthEncodeInteger(value uint64) []byte {
	b := make([]byte, 0, 12)
	switch {
	case value < 0xFB:
		b = append(b, byte(value))
	case value <= 0xFFFF:
		b = append(b, 0xFC)
		b = append(b, FixedLengthInteger(value, 2)...)
	case value <= 0xFFFFFF:
		b = append(b, 0xFD)
		b = append(b, FixedLengthInteger(value, 3)...)
	default:
		b = append(b, 0xFE)
		b = append(b, FixedLengthInteger(value, 8)...)
	}
	return b
}
