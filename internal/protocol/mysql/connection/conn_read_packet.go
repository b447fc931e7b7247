package connection

import (
	"fmt"

	"github.com/relaydb/proxy/internal/errs"
)

// readPacket reads one complete packet, stripping the 4-byte header and
// stitching together any 2^24-1-byte continuation chain.
func (mc *Conn) readPacket() ([]byte, error) {
	var prevData []byte
	for {
		// header: 3-byte length + 1-byte sequence
		data := make([]byte, 4)
		_, err := mc.conn.Read(data)
		if err != nil {
			return nil, fmt.Errorf("%w: read packet header: %w", errs.ErrInvalidConn, err)
		}

		pktLen := int(uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16)

		if data[3] == 0 {
			// start of a new command
			mc.sequence = 0
		} else if data[3] != mc.sequence {
			_ = mc.Close()
			return nil, errs.ErrPktSync
		}
		mc.sequence++

		// packets with length 0 terminate a previous packet which is a
		// multiple of (2^24)-1 bytes long
		if pktLen == 0 {
			if prevData == nil {
				return nil, fmt.Errorf("%w: zero-length packet with no predecessor", errs.ErrInvalidConn)
			}
			return prevData, nil
		}

		body := make([]byte, pktLen)
		_, err = mc.conn.Read(body)
		if err != nil {
			return nil, fmt.Errorf("%w: read packet body: %w", errs.ErrInvalidConn, err)
		}

		if pktLen < maxPacketSize {
			// zero allocations for non-split packets
			if prevData == nil {
				return body, nil
			}
			return append(prevData, body...), nil
		}
		prevData = append(prevData, body...)
	}
}
