package connection

import (
	"github.com/relaydb/proxy/internal/protocol/mysql/flags"
	"github.com/relaydb/proxy/internal/protocol/mysql/packet"
	"github.com/relaydb/proxy/internal/protocol/mysql/packet/builder"
	"github.com/relaydb/proxy/internal/protocol/mysql/packet/parser"
)

// startHandshake sends the initial handshake (protocol v10) the server
// side of a MySQL connection always speaks first.
func (mc *Conn) startHandshake() error {
	b := builder.NewHandshakeV10Packet(flags.CapabilityFlags(flags.ClientPluginAuth), flags.ServerStatusAutoCommit, builder.AuthPluginDataGenerator)
	b.ProtocolVersion = packet.MinProtocolVersion
	b.ServerVersion = "8.4.0"
	b.ConnectionID = mc.Id
	b.AuthPluginName = "mysql_native_password"
	return mc.WritePacket(b.Build())
}

func (mc *Conn) auth() error {
	payload, err := mc.readPacket()
	if err != nil {
		return err
	}
	// TODO: always parsed as protocol 4.1; branch on the client's
	// requested capabilities once older protocols need support.
	p := parser.HandshakeResponse41{}
	if err := p.Parse(payload); err != nil {
		return err
	}
	mc.clientFlags = p.ClientFlags()
	mc.characterSet = p.CharacterSet()
	b := builder.NewOKPacket(mc.ClientCapabilityFlags(), flags.ServerStatusAutoCommit)
	return mc.WritePacket(b.Build())
}
