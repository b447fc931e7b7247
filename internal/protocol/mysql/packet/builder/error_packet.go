package builder

import (
	"encoding/binary"
	"fmt"

	"github.com/relaydb/proxy/internal/protocol/mysql/flags"
)

// Naming follows the MySQL documentation's own constant names, hence the
// non-Go-idiomatic casing.

// ER_XAER_INVAL: unsupported argument or command.
var ER_XAER_INVAL = Error{
	code:     1398,
	sqlState: []byte("XAE05"),
	msg:      "XAER_INVAL: Invalid arguments (or unsupported command)",
}

// Error represents a server-side error, generally one of the codes
// predefined by the MySQL wire protocol.
// https://mariadb.com/kb/en/mariadb-error-code-reference/
type Error struct {
	code uint16
	// sqlState is normally a fixed 5-character code.
	sqlState []byte
	msg      string
}

func NewInternalError(cause error) Error {
	return Error{
		// TODO: pick a SQLState/message per the underlying cause instead of
		// always reporting HY000.
		code:     2003,
		sqlState: []byte("HY000"),
		msg:      fmt.Sprintf("Internal error: %s", cause),
	}
}

func (e Error) Code() uint16 {
	return e.code
}

func (e Error) SQLState() []byte {
	return e.sqlState
}

func (e Error) Msg() string {
	return e.msg
}

// ErrorPacketBuilder builds an ERR_Packet.
type ErrorPacketBuilder struct {
	// Capabilities are the flags negotiated for the connection this
	// packet is being written to.
	Capabilities flags.CapabilityFlags

	Error Error
}

func NewErrorPacketBuilder(cap flags.CapabilityFlags, err Error) *ErrorPacketBuilder {
	return &ErrorPacketBuilder{
		Capabilities: cap,
		Error:        err,
	}
}

// Build constructs the ERR_Packet payload (header bytes reserved but not
// filled in).
// https://dev.mysql.com/doc/dev/mysql-server/latest/page_protocol_basic_err_packet.html
func (b *ErrorPacketBuilder) Build() []byte {
	p := make([]byte, 4, 13+len(b.Error.Msg()))

	// int<1> header, always 0xFF
	p = append(p, 0xFF)

	// int<2> error_code
	p = binary.LittleEndian.AppendUint16(p, b.Error.Code())

	if b.Capabilities.Has(flags.ClientProtocol41) {
		// string[1] sql_state_marker, always '#'
		p = append(p, '#')
		// string[5] sql_state
		p = append(p, b.Error.SQLState()...)
	}

	// string<EOF> error_message
	p = append(p, b.Error.Msg()...)

	return p
}
