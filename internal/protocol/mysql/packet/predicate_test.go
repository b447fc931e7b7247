package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(seq byte, payload []byte) []byte {
	n := len(payload)
	return append([]byte{byte(n), byte(n >> 8), byte(n >> 16), seq}, payload...)
}

func TestSplitCompletePackets_RoundTrip(t *testing.T) {
	p1 := frame(0, []byte("select 1"))
	p2 := frame(1, []byte("another packet"))
	buf := append(append([]byte{}, p1...), p2...)

	complete, remainder := SplitCompletePackets(buf)
	require.Len(t, complete, 2)
	assert.Equal(t, []byte("select 1"), complete[0])
	assert.Equal(t, []byte("another packet"), complete[1])
	assert.Empty(t, remainder)
}

func TestSplitCompletePackets_PartialTrailingPacketIsRemainder(t *testing.T) {
	full := frame(0, []byte("complete"))
	partial := []byte{5, 0, 0, 1, 'a', 'b'} // claims 5 bytes, only 2 present
	buf := append(append([]byte{}, full...), partial...)

	complete, remainder := SplitCompletePackets(buf)
	require.Len(t, complete, 1)
	assert.Equal(t, []byte("complete"), complete[0])
	assert.Equal(t, partial, remainder)
}

func TestSplitCompletePackets_LargePacketChain(t *testing.T) {
	// A payload of exactly MaxPacketSize bytes followed by a zero-length
	// continuation is one logical packet, per spec §8's boundary case.
	big := make([]byte, MaxPacketSize)
	chain := append(frame(0, big), frame(1, nil)...)

	complete, remainder := SplitCompletePackets(chain)
	require.Len(t, complete, 1)
	assert.Len(t, complete[0], MaxPacketSize)
	assert.Empty(t, remainder)
}

func TestSplitCompletePackets_LargePacketChainWithShortTerminator(t *testing.T) {
	big := make([]byte, MaxPacketSize)
	tail := []byte("tail bytes")
	chain := append(frame(0, big), frame(1, tail)...)

	complete, remainder := SplitCompletePackets(chain)
	require.Len(t, complete, 1)
	assert.Len(t, complete[0], MaxPacketSize+len(tail))
	assert.Empty(t, remainder)
}

func TestPacketPredicates(t *testing.T) {
	ok := append([]byte{0x00}, make([]byte, 6)...)
	assert.True(t, IsOKPacket(ok))
	assert.False(t, IsErrPacket(ok))

	errPkt := append([]byte{0xff}, []byte{0x01, 0x04, '#', 'H', 'Y', '0', '0', '0'}...)
	assert.True(t, IsErrPacket(errPkt))
	assert.False(t, IsOKPacket(errPkt))

	eof := []byte{0xfe, 0x00, 0x00, 0x00, 0x00}
	assert.True(t, IsEOFPacket(eof))
	assert.False(t, IsAuthSwitchRequest(eof))

	authSwitch := append([]byte{0xfe}, make([]byte, 20)...)
	assert.False(t, IsEOFPacket(authSwitch))
	assert.True(t, IsAuthSwitchRequest(authSwitch))

	localInfile := []byte{0xfb, '/', 't', 'm', 'p'}
	assert.True(t, IsLocalInfilePacket(localInfile))
}
