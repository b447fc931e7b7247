package connection

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/relaydb/proxy/internal/protocol/mysql/flags"
	"github.com/relaydb/proxy/internal/protocol/mysql/packet"
)

const maxPacketSize = packet.MaxPacketSize

// OnCmd handles one client command packet and reports whether it was
// handled successfully.
type OnCmd func(ctx context.Context, conn *Conn, payload []byte) error

// Conn represents one client-facing MySQL connection, driving the
// handshake, authentication and command loop over the wire.
type Conn struct {
	conn net.Conn
	// maxAllowedPacket defaults to maxPacketSize.
	maxAllowedPacket int
	writeTimeout     time.Duration
	sequence         uint8
	Id               uint32

	// onCmd handles a command arriving from the client.
	onCmd        OnCmd
	cmdTimeout   time.Duration
	InTransition bool

	clientFlags  flags.CapabilityFlags
	characterSet uint32
}

func NewConn(id uint32, rc net.Conn, onCmd OnCmd) *Conn {
	return &Conn{
		conn:             rc,
		maxAllowedPacket: maxPacketSize,
		writeTimeout:     time.Second * 3,
		onCmd:            onCmd,
		Id:               id,
		cmdTimeout:       time.Second * 3,
	}
}

// Loop drives the handshake and authentication, then reads client packets
// until onCmd or the connection itself returns an error. A returned error
// means this Conn is no longer usable.
func (mc *Conn) Loop() error {
	if err := mc.startHandshake(); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	if err := mc.auth(); err != nil {
		return fmt.Errorf("auth failed: %w", err)
	}
	for {
		pkt, err := mc.readPacket()
		if err != nil {
			return fmt.Errorf("read client packet failed: %w", err)
		}
		if err := mc.onCmd(context.Background(), mc, pkt); err != nil {
			return err
		}
	}
}

func (mc *Conn) Close() error {
	return mc.conn.Close()
}

func (mc *Conn) ClientCapabilityFlags() flags.CapabilityFlags {
	return mc.clientFlags
}

func (mc *Conn) CharacterSet() uint32 {
	return mc.characterSet
}
