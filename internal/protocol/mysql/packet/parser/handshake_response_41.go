package parser

import (
	"encoding/binary"

	"github.com/relaydb/proxy/internal/protocol/mysql/flags"
)

// HandshakeResponse41 is the client's handshake response. payload excludes
// the 4-byte packet header, so byte 0 here is wire offset 4.
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_connection_phase_packets_protocol_handshake_response.html#sect_protocol_connection_phase_packets_protocol_handshake_response41
type HandshakeResponse41 struct {
	// int<4>	client_flag	Capabilities Flags, CLIENT_PROTOCOL_41 always set.
	clientFlag flags.CapabilityFlags

	// int<4>	max_packet_size	maximum packet size

	// int<1>	character_set	client charset a_protocol_character_set, only the lower 8-bits
	characterSet uint32
}

func (h *HandshakeResponse41) Parse(payload []byte) error {
	h.clientFlag = flags.CapabilityFlags(flags.ClientProtocol41)
	h.clientFlag |= flags.CapabilityFlags(binary.LittleEndian.Uint32(payload[0:4]))
	h.characterSet = uint32(payload[8])
	return nil
}

func (h *HandshakeResponse41) ClientFlags() flags.CapabilityFlags {
	return h.clientFlag
}

func (h *HandshakeResponse41) CharacterSet() uint32 {
	return h.characterSet
}
