package backend

import (
	"fmt"

	"github.com/relaydb/proxy/internal/protocol/mysql/flags"
	"github.com/relaydb/proxy/internal/protocol/mysql/packet"
)

// ReplyState is the reply-tracking sub-machine's current position within
// one logical response.
type ReplyState int

const (
	ReplyStart ReplyState = iota
	ReplyRsetColDef
	ReplyRsetColDefEof
	ReplyRsetRows
	ReplyRsetPrepare
	ReplyDone
)

// Command identifies the client command a reply is being tracked for, to
// the extent the reply-state machine needs to special-case it.
type Command byte

const (
	CmdQuery       Command = 0x03
	CmdStmtPrepare Command = 0x16
	CmdStmtExecute Command = 0x17
	CmdFieldList   Command = 0x04
	CmdStatistics  Command = 0x09
	CmdBinlogDump  Command = 0x12
	CmdChangeUser  Command = 0x11
)

// ReplyError is the collected (code, sqlstate, message) from an ERR
// packet.
type ReplyError struct {
	Code     uint16
	SQLState string
	Message  string
}

// ReplyMeta accumulates everything observed about the response currently
// in flight.
type ReplyMeta struct {
	Command      Command
	AffectedRows uint64
	LastInsertID uint64
	StatusFlags  flags.SeverStatus
	Warnings     uint16
	Rows         int
	Fields       int
	SetVariables map[string]string
	Err          *ReplyError

	// Generated by PrepareStmt responses.
	GeneratedID uint64
	ParamCount  int
	ColumnCount int

	colDefCountdown  int
	prepareCountdown int
	openingCursor    bool
	loadActive       bool
}

// ReplyTracker drives the reply-state sub-machine over a sequence of
// complete logical packets belonging to one command's response. The
// large-packet continuation rule (a run of max-size wire packets forming
// one logical packet) is resolved entirely by the caller's packetIO
// before a payload ever reaches ProcessPacket, so the tracker itself has
// no notion of wire-level packet boundaries.
type ReplyTracker struct {
	State ReplyState
	Meta  ReplyMeta
}

func NewReplyTracker(cmd Command) *ReplyTracker {
	return &ReplyTracker{
		State: ReplyStart,
		Meta:  ReplyMeta{Command: cmd, SetVariables: map[string]string{}},
	}
}

// ProcessPacket advances the reply-state machine with one complete
// logical packet (header stripped, any large-packet chain already
// merged by the caller).
func (t *ReplyTracker) ProcessPacket(payload []byte) error {
	switch t.State {
	case ReplyStart:
		return t.processStart(payload)
	case ReplyRsetColDef:
		t.Meta.colDefCountdown--
		if t.Meta.colDefCountdown <= 0 {
			t.State = ReplyRsetColDefEof
		}
		return nil
	case ReplyRsetColDefEof:
		if !packet.IsEOFPacket(payload) {
			return fmt.Errorf("backend: expected EOF packet ending column definitions")
		}
		if t.Meta.openingCursor {
			t.State = ReplyDone
			return nil
		}
		t.State = ReplyRsetRows
		return nil
	case ReplyRsetRows:
		return t.processRsetRows(payload)
	case ReplyRsetPrepare:
		t.Meta.prepareCountdown--
		if t.Meta.prepareCountdown <= 0 {
			t.State = ReplyDone
		}
		return nil
	case ReplyDone:
		if packet.IsErrPacket(payload) {
			t.Meta.Err = parseErrPacket(payload)
		}
		return nil
	}
	return fmt.Errorf("backend: unknown reply state %d", t.State)
}

func (t *ReplyTracker) processStart(payload []byte) error {
	switch t.Meta.Command {
	case CmdBinlogDump:
		return nil // open-ended response; stay in Start
	case CmdStatistics:
		t.State = ReplyDone
		return nil
	case CmdFieldList:
		t.State = ReplyRsetRows
		return nil
	}

	if len(payload) == 0 {
		return fmt.Errorf("backend: empty reply packet")
	}

	switch {
	case packet.IsOKPacket(payload):
		return t.processOK(payload)
	case packet.IsErrPacket(payload):
		t.Meta.Err = parseErrPacket(payload)
		t.State = ReplyDone
		return nil
	case packet.IsLocalInfilePacket(payload):
		t.Meta.loadActive = true
		t.State = ReplyDone
		return nil
	default:
		// Length-encoded column-count header. AuthSwitchRequest (also
		// 0xfe-prefixed) never reaches here: Proto.trackReply intercepts it
		// before handing the payload to ProcessPacket while a change-user
		// exchange is in flight.
		r := packet.NewPayloadReader(payload)
		fieldCount, err := r.LengthEncodedInt()
		if err != nil {
			return fmt.Errorf("backend: field count: %w", err)
		}
		t.Meta.ColumnCount = int(fieldCount)
		t.Meta.colDefCountdown = int(fieldCount)
		t.State = ReplyRsetColDef
		return nil
	}
}

func (t *ReplyTracker) processOK(payload []byte) error {
	// COM_STMT_PREPARE's response shares the OK header byte but is a
	// distinct fixed-width layout (status, stmt_id, num_columns,
	// num_params, reserved, warning_count), not an OK_Packet's
	// length-encoded affected_rows/last_insert_id fields.
	if t.Meta.Command == CmdStmtPrepare {
		return t.processPrepareOK(payload)
	}

	r := packet.NewPayloadReader(payload)
	if _, err := r.U8(); err != nil { // header
		return err
	}
	affectedRows, err := r.LengthEncodedInt()
	if err != nil {
		return err
	}
	lastInsertID, err := r.LengthEncodedInt()
	if err != nil {
		return err
	}
	t.Meta.AffectedRows = affectedRows
	t.Meta.LastInsertID = lastInsertID

	if r.Len() >= 2 {
		status, err := r.U16LE()
		if err != nil {
			return err
		}
		t.Meta.StatusFlags = flags.SeverStatus(status)
	}
	if r.Len() >= 2 {
		warnings, err := r.U16LE()
		if err != nil {
			return err
		}
		t.Meta.Warnings = warnings
	}

	if t.Meta.StatusFlags.Has(flags.ServerSessionStateChanged) && r.Len() > 0 {
		if _, err := r.LengthEncodedString(); err == nil { // info
			if state, err := r.LengthEncodedString(); err == nil {
				if changes, err := ParseSessionTrack([]byte(state)); err == nil {
					for _, c := range changes {
						if c.Type == packet.SESSION_TRACK_SYSTEM_VARIABLES {
							t.Meta.SetVariables[c.Key] = c.Value
						}
					}
				}
			}
		}
	}

	if !t.Meta.StatusFlags.Has(flags.ServerMoreResultsExists) {
		t.State = ReplyDone
	}
	return nil
}

// processPrepareOK parses a COM_STMT_PREPARE_OK payload: status(1)
// stmt_id(4) num_columns(2) num_params(2) reserved(1) [warning_count(2)].
func (t *ReplyTracker) processPrepareOK(payload []byte) error {
	r := packet.NewPayloadReader(payload)
	if _, err := r.U8(); err != nil { // status, always 0
		return err
	}
	stmtID, err := r.U32LE()
	if err != nil {
		return err
	}
	numCols, err := r.U16LE()
	if err != nil {
		return err
	}
	numParams, err := r.U16LE()
	if err != nil {
		return err
	}
	if r.Len() >= 1 {
		_, _ = r.U8() // reserved_1
	}
	if r.Len() >= 2 {
		warnings, _ := r.U16LE()
		t.Meta.Warnings = warnings
	}

	t.Meta.GeneratedID = uint64(stmtID)
	t.Meta.ParamCount = int(numParams)
	t.Meta.ColumnCount = int(numCols)

	count := int(numCols) + int(numParams)
	if numCols > 0 {
		count++
	}
	if numParams > 0 {
		count++
	}
	if count == 0 {
		t.State = ReplyDone
		return nil
	}
	t.Meta.prepareCountdown = count
	t.State = ReplyRsetPrepare
	return nil
}

func (t *ReplyTracker) processRsetRows(payload []byte) error {
	switch {
	case packet.IsEOFPacket(payload):
		r := packet.NewPayloadReader(payload)
		if _, err := r.U8(); err != nil {
			return err
		}
		warnings, _ := r.U16LE()
		status, _ := r.U16LE()
		t.Meta.Warnings = warnings
		t.Meta.StatusFlags = flags.SeverStatus(status)
		if t.Meta.StatusFlags.Has(flags.ServerMoreResultsExists) {
			t.State = ReplyStart
		} else {
			t.State = ReplyDone
		}
		return nil
	case packet.IsErrPacket(payload):
		t.Meta.Err = parseErrPacket(payload)
		t.State = ReplyDone
		return nil
	default:
		t.Meta.Rows++
		return nil
	}
}

func parseErrPacket(payload []byte) *ReplyError {
	r := packet.NewPayloadReader(payload)
	_, _ = r.U8() // header
	code, _ := r.U16LE()
	e := &ReplyError{Code: code}
	rest := r.Rest()
	if len(rest) > 0 && rest[0] == '#' && len(rest) >= 6 {
		e.SQLState = string(rest[1:6])
		e.Message = string(rest[6:])
	} else {
		e.Message = string(rest)
	}
	return e
}
