package packet

import "encoding/binary"

// ReadEncodedLength reads an int<lenenc> from the front of b. The second
// return value is how many bytes the encoded form occupied.
func ReadEncodedLength(b []byte) (uint64, int) {
	// See issue #349
	if len(b) == 0 {
		return 0, 1
	}

	switch b[0] {
	case 0xfb:
		// NULL
		return 0, 1
	case 0xfc:
		// followed by 2 bytes
		return uint64(b[1]) | uint64(b[2])<<8, 3
	case 0xfd:
		// followed by 3 bytes
		return uint64(b[1]) | uint64(b[2])<<8 | uint64(b[3])<<16, 4
	case 0xfe:
		// followed by 8 bytes. Not handled: a leading 0xFE byte may instead
		// be an EOF_Packet if the remaining payload is too short for an
		// 8-byte integer; not encountered in practice yet.
		return uint64(b[1]) | uint64(b[2])<<8 | uint64(b[3])<<16 |
			uint64(b[4])<<24 | uint64(b[5])<<32 | uint64(b[6])<<40 |
			uint64(b[7])<<48 | uint64(b[8])<<56, 9
	}

	// 0-250: the first byte is the value itself
	return uint64(b[0]), 1
}

// LengthEncodeString encodes str as string<lenenc>.
func LengthEncodeString(str string) []byte {
	return append(LengthEncodeInteger(uint64(len(str))), []byte(str)...)
}

// LengthEncodeInteger encodes value as int<lenenc>.
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_basic_dt_integers.html#sect_protocol_basic_dt_int_le
func LengthEncodeInteger(value uint64) []byte {
	encodedValue := make([]byte, 0, 12)

	switch {
	case value < 0xFB:
		encodedValue = append(encodedValue, byte(value))
	case value <= 0xFFFF:
		encodedValue = append(encodedValue, 0xFC)
		encodedValue = append(encodedValue, uint16ToBytes(uint16(value))...)
	case value <= 0xFFFFFF:
		encodedValue = append(encodedValue, 0xFD)
		encodedValue = append(encodedValue, uint24ToBytes(uint32(value))...)
	default:
		encodedValue = append(encodedValue, 0xFE)
		encodedValue = append(encodedValue, uint64ToBytes(value)...)
	}

	return encodedValue
}

func uint16ToBytes(value uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, value)
	return b
}

func uint24ToBytes(value uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, value)
	return b[:3]
}

func uint64ToBytes(value uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, value)
	return b
}

// FixedLengthInteger encodes value as a little-endian integer truncated to
// byteSize bytes.
func FixedLengthInteger(value uint32, byteSize int) []byte {
	encodedValue := make([]byte, 4)
	binary.LittleEndian.PutUint32(encodedValue, value)
	return encodedValue[:byteSize]
}
