package connection

import (
	"fmt"
	"time"

	"github.com/relaydb/proxy/internal/errs"
	"github.com/relaydb/proxy/internal/protocol/mysql/packet/builder"
)

// WritePacket writes one packet. It does not split data across multiple
// packets: callers that need to send more than maxPacketSize bytes must
// split it themselves. data must reserve its own 4-byte header (as every
// packet/builder.*Builder.Build() does); WritePacketPayload is for bare,
// already-stripped payloads instead.
// https://mariadb.com/kb/en/0-packet/
func (mc *Conn) WritePacket(data []byte) error {
	data, err := builder.NewSetHeader(mc.sequence, data).Build()
	if err != nil {
		return err
	}

	if mc.writeTimeout > 0 {
		if err := mc.conn.SetWriteDeadline(time.Now().Add(mc.writeTimeout)); err != nil {
			return err
		}
	}

	n, err := mc.conn.Write(data)
	if err != nil {
		return fmt.Errorf("%w: write failed: %w", errs.ErrInvalidConn, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: short write, wanted %d bytes, wrote %d", errs.ErrInvalidConn, len(data), n)
	}
	mc.sequence++
	return nil
}

// WritePacketPayload writes a bare, already-stripped payload (as produced
// by a backend connection's packet reader), reserving the 4-byte header
// itself before handing off to WritePacket.
func (mc *Conn) WritePacketPayload(payload []byte) error {
	buf := make([]byte, 4, 4+len(payload))
	buf = append(buf, payload...)
	return mc.WritePacket(buf)
}
