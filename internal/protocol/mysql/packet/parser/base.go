package parser

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// base holds the length-encoded primitive readers shared by every payload
// parser: length-encoded integers, length-encoded strings and opaque
// variable-length binary blobs.
type base struct{}

// ParseLengthEncodedInteger parses int<lenenc>. The second return value is
// the number of bytes holding the value: 1 when the first byte is the value
// itself, otherwise the 2, 3 or 8 bytes after the marker byte (the marker
// is not counted).
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_basic_dt_integers.html#sect_protocol_basic_dt_int_le
func (p *base) ParseLengthEncodedInteger(buf *bytes.Buffer) (uint64, int, error) {
	firstByte, err := buf.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	switch {
	case firstByte < 0xFB:
		// [0, 251): the byte itself is the value.
		return uint64(firstByte), 1, nil
	case firstByte == 0xFC:
		// [251, 2^16): 0xFC + 2-byte integer.
		var num uint16
		if err := binary.Read(buf, binary.LittleEndian, &num); err != nil {
			return 0, 0, err
		}
		return uint64(num), 2, nil
	case firstByte == 0xFD:
		// [2^16, 2^24): 0xFD + 3-byte integer.
		b := make([]byte, 3)
		if err := binary.Read(buf, binary.LittleEndian, b); err != nil {
			return 0, 0, err
		}
		var result uint64
		result |= uint64(b[0])
		result |= uint64(b[1]) << 8
		result |= uint64(b[2]) << 16
		return result, 3, nil
	case firstByte == 0xFE:
		// [2^24, 2^64): 0xFE + 8-byte integer.
		var num uint64
		if err := binary.Read(buf, binary.LittleEndian, &num); err != nil {
			return 0, 0, err
		}
		return num, 8, nil
	default:
		return 0, 0, fmt.Errorf("invalid length-encoded integer first byte: %d", firstByte)
	}
}

// ParseLengthEncodedString parses string<lenenc>.
func (p *base) ParseLengthEncodedString(buf *bytes.Buffer) (string, error) {
	strLength, _, err := p.ParseLengthEncodedInteger(buf)
	if err != nil {
		return "", err
	}
	strBytes := make([]byte, strLength)
	if _, err := buf.Read(strBytes); err != nil {
		return "", err
	}
	return string(strBytes), nil
}

// ParseVariableLengthBinary parses a length-prefixed binary blob.
func (p *base) ParseVariableLengthBinary(buf *bytes.Buffer) ([]byte, error) {
	binLength, _, err := p.ParseLengthEncodedInteger(buf)
	if err != nil {
		return nil, err
	}

	binBytes := make([]byte, binLength)
	if _, err := buf.Read(binBytes); err != nil {
		return nil, err
	}

	return binBytes, nil
}
