package backend

import (
	"fmt"

	"github.com/relaydb/proxy/internal/protocol/mysql/flags"
	"github.com/relaydb/proxy/internal/protocol/mysql/packet"
)

// ServerHandshake is the parsed form of the handshake v10 packet a
// backend sends immediately after the TCP connection is established.
type ServerHandshake struct {
	ProtocolVersion byte
	ServerVersion   string
	ThreadID        uint32
	Scramble        [20]byte
	Capabilities    flags.CapabilityFlags
	CharacterSet    byte
	StatusFlags     flags.SeverStatus
	AuthPluginName  string
}

// ParseServerHandshake parses a handshake v10 payload (header stripped).
func ParseServerHandshake(payload []byte) (*ServerHandshake, error) {
	r := packet.NewPayloadReader(payload)

	protoVersion, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("backend handshake: protocol version: %w", err)
	}
	serverVersion, err := r.NullTerminatedString()
	if err != nil {
		return nil, fmt.Errorf("backend handshake: server version: %w", err)
	}
	threadID, err := r.U32LE()
	if err != nil {
		return nil, fmt.Errorf("backend handshake: thread id: %w", err)
	}
	scramble1, err := r.FixedLengthBytes(8)
	if err != nil {
		return nil, fmt.Errorf("backend handshake: scramble part 1: %w", err)
	}
	if _, err := r.U8(); err != nil { // filler
		return nil, fmt.Errorf("backend handshake: filler: %w", err)
	}
	capLo, err := r.U16LE()
	if err != nil {
		return nil, fmt.Errorf("backend handshake: capability_flags_1: %w", err)
	}
	charset, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("backend handshake: character set: %w", err)
	}
	status, err := r.U16LE()
	if err != nil {
		return nil, fmt.Errorf("backend handshake: status flags: %w", err)
	}
	capHi, err := r.U16LE()
	if err != nil {
		return nil, fmt.Errorf("backend handshake: capability_flags_2: %w", err)
	}
	authPluginDataLen, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("backend handshake: auth plugin data length: %w", err)
	}
	if _, err := r.FixedLengthBytes(10); err != nil { // reserved
		return nil, fmt.Errorf("backend handshake: reserved: %w", err)
	}

	capabilities := flags.CapabilityFlags(uint32(capLo) | uint32(capHi)<<16)

	scramble2Len := 13
	if int(authPluginDataLen)-8 > scramble2Len {
		scramble2Len = int(authPluginDataLen) - 8
	}
	scramble2, err := r.FixedLengthBytes(scramble2Len)
	if err != nil {
		return nil, fmt.Errorf("backend handshake: scramble part 2: %w", err)
	}
	// scramble2 is NUL-terminated; drop the terminator if present.
	if len(scramble2) > 0 && scramble2[len(scramble2)-1] == 0 {
		scramble2 = scramble2[:len(scramble2)-1]
	}

	var authPluginName string
	if capabilities.Has(flags.ClientPluginAuth) {
		authPluginName, _ = r.NullTerminatedString()
	}

	hs := &ServerHandshake{
		ProtocolVersion: protoVersion,
		ServerVersion:   serverVersion,
		ThreadID:        threadID,
		Capabilities:    capabilities,
		CharacterSet:    charset,
		StatusFlags:     flags.SeverStatus(status),
		AuthPluginName:  authPluginName,
	}
	copy(hs.Scramble[:8], scramble1)
	copy(hs.Scramble[8:], scramble2)
	return hs, nil
}
