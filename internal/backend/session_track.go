package backend

import (
	"github.com/relaydb/proxy/internal/protocol/mysql/packet"
)

// SessionStateChange is one length-encoded block from an OK packet's
// session-track data (present when SERVER_SESSION_STATE_CHANGED is set).
type SessionStateChange struct {
	Type packet.SessionState
	// Key/Value are populated for SESSION_TRACK_SYSTEM_VARIABLES; Value
	// alone is populated for the other types (schema name, GTID, etc).
	Key   string
	Value string
}

// ParseSessionTrack reads every session-track block trailing an OK
// packet's info string.
func ParseSessionTrack(data []byte) ([]SessionStateChange, error) {
	r := packet.NewPayloadReader(data)
	var changes []SessionStateChange
	for r.Len() > 0 {
		typ, err := r.U8()
		if err != nil {
			return changes, err
		}
		blockLen, err := r.LengthEncodedInt()
		if err != nil {
			return changes, err
		}
		blockBytes, err := r.FixedLengthBytes(int(blockLen))
		if err != nil {
			return changes, err
		}
		block := packet.NewPayloadReader([]byte(blockBytes))

		switch packet.SessionState(typ) {
		case packet.SESSION_TRACK_SYSTEM_VARIABLES:
			key, err := block.LengthEncodedString()
			if err != nil {
				return changes, err
			}
			value, err := block.LengthEncodedString()
			if err != nil {
				return changes, err
			}
			changes = append(changes, SessionStateChange{Type: packet.SESSION_TRACK_SYSTEM_VARIABLES, Key: key, Value: value})
		case packet.SESSION_TRACK_GTIDS:
			if _, err := block.U8(); err != nil { // encoding specification
				return changes, err
			}
			value, err := block.LengthEncodedString()
			if err != nil {
				return changes, err
			}
			changes = append(changes, SessionStateChange{Type: packet.SESSION_TRACK_GTIDS, Value: value})
		default:
			value, err := block.LengthEncodedString()
			if err != nil {
				return changes, err
			}
			changes = append(changes, SessionStateChange{Type: packet.SessionState(typ), Value: value})
		}
	}
	return changes, nil
}
