package builder

import (
	"testing"

	"github.com/relaydb/proxy/internal/protocol/mysql/flags"
	"github.com/stretchr/testify/assert"
)

func TestOKPacketBuilder_Build(t *testing.T) {
	tests := []struct {
		name string
		b    OKPacketBuilder
		want []byte
	}{
		{
			name: "OK",
			b: OKPacketBuilder{
				Capabilities: flags.CapabilityFlags(flags.ClientProtocol41),
				StatusFlags:  flags.ServerStatusAutoCommit,
			},
			want: []byte{
				0x07, 0x00, 0x00, 0x02, // packet header
				0x00,       // OK header
				0x00,       // affected_rows
				0x00,       // last_insert_id
				0x02, 0x00, // status_flags
				0x00, 0x00, // warnings
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want[4:], tt.b.Build()[4:])
		})
	}
}
