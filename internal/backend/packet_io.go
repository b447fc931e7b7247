package backend

import (
	"fmt"
	"net"

	"github.com/relaydb/proxy/internal/errs"
	"github.com/relaydb/proxy/internal/protocol/mysql/packet"
	"github.com/relaydb/proxy/internal/protocol/mysql/packet/builder"
)

// packetIO frames reads and writes on a backend net.Conn, tracking the
// sequence byte the same way the client-facing connection package does.
type packetIO struct {
	conn     net.Conn
	sequence uint8
}

func newPacketIO(conn net.Conn) *packetIO {
	return &packetIO{conn: conn}
}

// readPacket reads one logical packet, following the large-packet
// continuation chain (a run of MaxPacketSize wire packets terminated by a
// shorter one, possibly empty) to completion before returning. The large-
// packet rule is fully resolved here: by the time readPacket returns, the
// chain has been merged into a single payload indistinguishable from one
// that arrived in a single wire packet, so callers never need to treat it
// specially.
func (p *packetIO) readPacket() (payload []byte, err error) {
	var prevData []byte
	for {
		header := make([]byte, 4)
		if _, err := fullRead(p.conn, header); err != nil {
			return nil, fmt.Errorf("%w: read packet header: %w", errs.ErrInvalidConn, err)
		}
		pktLen := int(uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16)
		p.sequence = header[3] + 1

		body := make([]byte, pktLen)
		if pktLen > 0 {
			if _, err := fullRead(p.conn, body); err != nil {
				return nil, fmt.Errorf("%w: read packet body: %w", errs.ErrInvalidConn, err)
			}
		}

		if pktLen < packet.MaxPacketSize {
			if prevData == nil {
				return body, nil
			}
			return append(prevData, body...), nil
		}
		prevData = append(prevData, body...)
	}
}

func (p *packetIO) writePacket(payload []byte) error {
	buf := make([]byte, 4, 4+len(payload))
	buf = append(buf, payload...)
	framed, err := builder.NewSetHeader(p.sequence, buf).Build()
	if err != nil {
		return err
	}
	if _, err := p.conn.Write(framed); err != nil {
		return fmt.Errorf("%w: write failed: %w", errs.ErrInvalidConn, err)
	}
	p.sequence++
	return nil
}

func (p *packetIO) resetSequence() {
	p.sequence = 0
}

func fullRead(conn net.Conn, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := conn.Read(buf[read:])
		read += n
		if err != nil {
			return read, err
		}
	}
	return read, nil
}
