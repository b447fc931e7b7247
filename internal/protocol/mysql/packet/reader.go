package packet

import (
	"encoding/binary"
	"fmt"
)

// PayloadReader walks a packet payload primitive-by-primitive without
// copying the backing array; every read advances an internal offset.
type PayloadReader struct {
	buf []byte
	off int
}

func NewPayloadReader(payload []byte) *PayloadReader {
	return &PayloadReader{buf: payload}
}

func (r *PayloadReader) Len() int { return len(r.buf) - r.off }

func (r *PayloadReader) require(n int) error {
	if r.Len() < n {
		return fmt.Errorf("packet: need %d bytes, have %d", n, r.Len())
	}
	return nil
}

// PeekU8 returns the next byte without advancing the offset.
func (r *PayloadReader) PeekU8() (byte, bool) {
	if r.Len() < 1 {
		return 0, false
	}
	return r.buf[r.off], true
}

func (r *PayloadReader) U8() (byte, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *PayloadReader) U16LE() (uint16, error) {
	if err := r.require(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *PayloadReader) U24LE() (uint32, error) {
	if err := r.require(3); err != nil {
		return 0, err
	}
	v := uint32(r.buf[r.off]) | uint32(r.buf[r.off+1])<<8 | uint32(r.buf[r.off+2])<<16
	r.off += 3
	return v, nil
}

func (r *PayloadReader) U32LE() (uint32, error) {
	if err := r.require(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

// LengthEncodedInt reads int<lenenc>.
func (r *PayloadReader) LengthEncodedInt() (uint64, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	v, n := ReadEncodedLength(r.buf[r.off:])
	if err := r.require(n); err != nil {
		return 0, err
	}
	r.off += n
	return v, nil
}

// LengthEncodedString reads string<lenenc>.
func (r *PayloadReader) LengthEncodedString() (string, error) {
	n, err := r.LengthEncodedInt()
	if err != nil {
		return "", err
	}
	return r.FixedLengthBytes(int(n))
}

// NullTerminatedString reads bytes up to (and consuming) the next NUL.
func (r *PayloadReader) NullTerminatedString() (string, error) {
	for i := r.off; i < len(r.buf); i++ {
		if r.buf[i] == 0 {
			s := string(r.buf[r.off:i])
			r.off = i + 1
			return s, nil
		}
	}
	return "", fmt.Errorf("packet: unterminated string")
}

// FixedLengthBytes reads n raw bytes.
func (r *PayloadReader) FixedLengthBytes(n int) (string, error) {
	if err := r.require(n); err != nil {
		return "", err
	}
	s := string(r.buf[r.off : r.off+n])
	r.off += n
	return s, nil
}

// Rest returns every remaining byte without advancing the offset.
func (r *PayloadReader) Rest() []byte {
	return r.buf[r.off:]
}
