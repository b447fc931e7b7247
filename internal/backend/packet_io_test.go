package backend

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaydb/proxy/internal/protocol/mysql/packet"
)

func frame(seq byte, payload []byte) []byte {
	n := len(payload)
	return append([]byte{byte(n), byte(n >> 8), byte(n >> 16), seq}, payload...)
}

// TestPacketIO_ReadPacket_LargePacketChain covers spec §8's large-packet
// boundary case: a max-size wire packet followed by a zero-length
// continuation is one logical packet, and readPacket alone is
// responsible for resolving that before any caller sees a payload — a
// packet genuinely following the chain must come back on its own,
// separate readPacket call rather than being folded in or skipped.
func TestPacketIO_ReadPacket_LargePacketChain(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	bigPayload := make([]byte, packet.MaxPacketSize)
	for i := range bigPayload {
		bigPayload[i] = 'a'
	}
	eof := []byte{0xfe, 0x00, 0x00, 0x00, 0x00}

	go func() {
		_, _ = server.Write(frame(0, bigPayload))
		_, _ = server.Write(frame(1, nil)) // zero-length terminating continuation
		_, _ = server.Write(frame(2, eof)) // a genuinely separate logical packet
	}()

	pio := newPacketIO(client)

	merged, err := pio.readPacket()
	require.NoError(t, err)
	require.Len(t, merged, len(bigPayload), "the chain must merge into one logical packet of the full length")

	next, err := pio.readPacket()
	require.NoError(t, err)
	require.Equal(t, eof, next, "the packet after the chain must be read as its own logical packet")
}

// TestPacketIO_ReadPacket_SinglePacket is the common case: no
// continuation, payload returned as-is.
func TestPacketIO_ReadPacket_SinglePacket(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte("select 1")
	go func() {
		_, _ = server.Write(frame(0, payload))
	}()

	pio := newPacketIO(client)
	got, err := pio.readPacket()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}
