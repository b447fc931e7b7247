package builder

import (
	"github.com/relaydb/proxy/internal/protocol/mysql/flags"
	"github.com/relaydb/proxy/internal/protocol/mysql/packet/encoding"
)

// OKPacketBuilder builds the OK_Packet sent to acknowledge a client
// command.
type OKPacketBuilder struct {
	Capabilities flags.CapabilityFlags

	AffectedRows uint64
	LastInsertID uint64
	// StatusFlags is only meaningful when Capabilities has ClientProtocol41
	// or ClientTransactions.
	StatusFlags flags.SeverStatus
	// Warnings is only meaningful when Capabilities has ClientProtocol41.
	Warnings uint16
	Info     string
}

// NewOKPacket builds an OKPacketBuilder for the given capabilities and
// status flags.
func NewOKPacket(capabilities flags.CapabilityFlags, statusFlags flags.SeverStatus) *OKPacketBuilder {
	return &OKPacketBuilder{
		Capabilities: capabilities,
		StatusFlags:  statusFlags,
	}
}

// Build constructs the OK_Packet payload.
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_basic_ok_packet.html
func (b *OKPacketBuilder) Build() []byte {
	p := make([]byte, 4, 11)

	// int<1> header, 0x00
	p = append(p, 0x00)

	// int<lenenc> affected_rows
	p = append(p, encoding.LengthEncodeInteger(b.AffectedRows)...)

	// int<lenenc> last_insert_id
	p = append(p, encoding.LengthEncodeInteger(b.LastInsertID)...)

	if b.Capabilities.Has(flags.ClientProtocol41) {
		// int<2> status_flags
		p = append(p, encoding.FixedLengthInteger(uint64(b.StatusFlags), 2)...)
		// int<2> warnings
		p = append(p, encoding.FixedLengthInteger(uint64(b.Warnings), 2)...)
	} else if b.Capabilities.Has(flags.ClientTransactions) {
		// int<2> status_flags
		p = append(p, encoding.FixedLengthInteger(uint64(b.StatusFlags), 2)...)
	}

	if b.Capabilities.Has(flags.ClientSessionTrack) {
		// string<lenenc> info
		p = append(p, encoding.LengthEncodeString(b.Info)...)

		if b.StatusFlags.Has(flags.ServerSessionStateChanged) {
			// string<lenenc> session state info
			panic("ClientSessionTrack session state info is not supported yet")
		}
	} else {
		// string<EOF> info
		p = append(p, b.Info...)
	}

	return p
}
