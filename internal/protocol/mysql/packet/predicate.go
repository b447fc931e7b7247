package packet

// First-byte packet type tags.
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_basic_response_packets.html
const (
	headerOK          = 0x00
	headerEOF         = 0xfe
	headerErr         = 0xff
	headerLocalInfile = 0xfb
)

// IsOKPacket reports whether payload is an OK_Packet: header 0x00 and a
// length of at least 7 (header, affected_rows and last_insert_id at 1 byte
// each at minimum, then 2-byte status_flags and 2-byte warnings).
func IsOKPacket(payload []byte) bool {
	return len(payload) >= 7 && payload[0] == headerOK
}

// IsErrPacket reports whether payload is an ERR_Packet.
func IsErrPacket(payload []byte) bool {
	return len(payload) > 0 && payload[0] == headerErr
}

// IsEOFPacket reports whether payload is an EOF_Packet: header 0xfe and a
// length under 9 bytes. A longer payload with the same leading byte is
// either an AuthSwitchRequest or the length-encoded-int header of a
// column count, never an EOF.
func IsEOFPacket(payload []byte) bool {
	return len(payload) < 9 && len(payload) > 0 && payload[0] == headerEOF
}

// IsLocalInfilePacket reports whether payload is a LOCAL_INFILE request.
func IsLocalInfilePacket(payload []byte) bool {
	return len(payload) > 0 && payload[0] == headerLocalInfile
}

// IsAuthSwitchRequest reports whether payload is an AuthSwitchRequest: it
// shares the EOF leading byte but is only ever sent mid-authentication, so
// callers must gate this on connection state rather than payload shape
// alone; this only checks the byte-level shape (header 0xfe, length >= 9).
func IsAuthSwitchRequest(payload []byte) bool {
	return len(payload) >= 9 && payload[0] == headerEOF
}

// SplitCompletePackets slices off every wholly contained packet
// (header+payload) from buf: callers get each packet's payload with its
// header stripped, plus whatever partial bytes remain at the tail. If a
// packet begins a large-packet chain (payload length == MaxPacketSize),
// all continuation packets up to and including the terminating
// short/empty one are included as a single logical packet.
func SplitCompletePackets(buf []byte) (complete [][]byte, remainder []byte) {
	offset := 0
	for {
		pkt, n, ok := readOneLogicalPacket(buf[offset:])
		if !ok {
			break
		}
		complete = append(complete, pkt)
		offset += n
	}
	return complete, buf[offset:]
}

// readOneLogicalPacket reads one logical packet (following the large-packet
// continuation chain) from the front of buf. n is the number of raw bytes
// consumed, including every header.
func readOneLogicalPacket(buf []byte) (pkt []byte, n int, ok bool) {
	var payload []byte
	for {
		if len(buf[n:]) < 4 {
			return nil, 0, false
		}
		header := buf[n : n+4]
		pktLen := int(uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16)
		if len(buf[n+4:]) < pktLen {
			return nil, 0, false
		}
		payload = append(payload, buf[n+4:n+4+pktLen]...)
		n += 4 + pktLen
		if pktLen < MaxPacketSize {
			return payload, n, true
		}
	}
}
