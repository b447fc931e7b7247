package builder

import (
	"errors"
	"testing"

	"github.com/relaydb/proxy/internal/protocol/mysql/flags"
	"github.com/stretchr/testify/assert"
)

func TestErrorPacketBuilder_Build(t *testing.T) {
	tests := []struct {
		name         string
		Capabilities flags.CapabilityFlags
		Error        Error
		want         []byte
	}{
		{
			name:         "client sends ClientProtocol41",
			Capabilities: flags.CapabilityFlags(flags.ClientProtocol41),
			Error:        NewInternalError(errors.New("no tables used")),
			want: []byte{
				0xff,       // header
				0xd3, 0x07, // error_code
				0x23,                         // sql_state_marker
				0x48, 0x59, 0x30, 0x30, 0x30, // sql_state
				0x49, 0x6e, 0x74, 0x65, 0x72, 0x6e, 0x61, 0x6c, 0x20, 0x65, 0x72, 0x72, 0x6f, // error_message
				0x72, 0x3a, 0x20, 0x6e, 0x6f, 0x20, 0x74, 0x61, 0x62, 0x6c, 0x65, 0x73, 0x20, 0x75, 0x73, 0x65, 0x64,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ErrorPacketBuilder{
				Capabilities: tt.Capabilities,
				Error:        tt.Error,
			}
			assert.Equal(t, tt.want, b.Build()[4:])
		})
	}
}
