package builder

import (
	"encoding/binary"

	"github.com/ecodeclub/ekit/randx"
	"github.com/relaydb/proxy/internal/protocol/mysql/flags"
	"github.com/relaydb/proxy/internal/protocol/mysql/packet/encoding"
)

// HandshakeV10Packet is the initial handshake packet: the server side of a
// MySQL connection always speaks first once the TCP connection is
// established, and the client responds to it.
// TODO: support SSL.
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_connection_phase.html#sect_protocol_connection_phase_initial_handshake
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_connection_phase_packets_protocol_handshake_v10.html
type HandshakeV10Packet struct {
	capabilities       flags.CapabilityFlags
	authPluginDataFunc func() string

	ProtocolVersion      byte
	ServerVersion        string
	ConnectionID         uint32
	CapabilityFlags1     uint16
	CharacterSet         byte
	StatusFlags          flags.SeverStatus
	CapabilityFlags2     uint16
	AuthPluginDataLength byte
	AuthPluginName       string
}

func NewHandshakeV10Packet(capabilities flags.CapabilityFlags, serverStatus flags.SeverStatus, AuthPluginDataGenerator func() string) *HandshakeV10Packet {
	return &HandshakeV10Packet{
		capabilities:         capabilities,
		StatusFlags:          serverStatus,
		CapabilityFlags1:     0xFFFF,
		CharacterSet:         0xFF,
		CapabilityFlags2:     0xDFFF,
		AuthPluginDataLength: 0x15,
		authPluginDataFunc:   AuthPluginDataGenerator,
	}
}

func (b *HandshakeV10Packet) Build() []byte {
	p := make([]byte, 4, 50)

	// int<1> protocol version, always 10
	p = append(p, b.ProtocolVersion)

	// string<NUL> server version
	p = append(p, encoding.NullTerminatedString(b.ServerVersion)...)

	// int<4> thread id, a.k.a. connection id
	p = binary.LittleEndian.AppendUint32(p, b.ConnectionID)

	// string[8] auth-plugin-data-part-1, first 8 bytes of the scramble
	// int<1> filler, 0x00 terminating the first part of the scramble
	// The full scramble is 21 bytes: 8 go in part 1, 12 in part 2, 1 is the
	// terminating NUL.
	authPluginData := b.authPluginDataFunc()[:20]
	p = append(p, encoding.NullTerminatedString(authPluginData[:8])...)

	// int<2> capability_flags_1, lower 2 bytes of the capability flags
	p = append(p, encoding.FixedLengthInteger(uint64(b.CapabilityFlags1), 2)...)

	// int<1> character_set, the connection is always transparent to
	// character data so this is left at 0xFF
	p = append(p, b.CharacterSet)

	// int<2> status_flags
	p = append(p, encoding.FixedLengthInteger(uint64(b.StatusFlags), 2)...)

	// int<2> capability_flags_2, upper 2 bytes of the capability flags
	p = append(p, encoding.FixedLengthInteger(uint64(b.CapabilityFlags2), 2)...)

	if b.capabilities.Has(flags.ClientPluginAuth) {
		// int<1> auth_plugin_data_len
		p = append(p, b.AuthPluginDataLength)
	} else {
		// int<1> 0x00
		p = append(p, 0x00)
	}

	// string[10] reserved, all zero
	p = append(p, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0)

	// $length auth-plugin-data-part-2, rest of the scramble,
	// $len=MAX(13, length of auth-plugin-data - 8), NUL-terminated
	p = append(p, encoding.NullTerminatedString(authPluginData[8:])...)

	if b.capabilities.Has(flags.ClientPluginAuth) {
		// NULL auth_plugin_name
		// TODO: only mysql_native_password is offered; support negotiating
		// other auth methods.
		p = append(p, encoding.NullTerminatedString(b.AuthPluginName)...)
	}

	return p
}

func AuthPluginDataGenerator() string {
	authPluginData, _ := randx.RandCode(20, randx.TypeMixed)
	return authPluginData
}
