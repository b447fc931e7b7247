package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydb/proxy/internal/protocol/mysql/flags"
)

func okPacket(statusFlags uint16) []byte {
	return []byte{0x00, 0x00, 0x00, byte(statusFlags), byte(statusFlags >> 8), 0x00, 0x00}
}

func eofPacket(statusFlags uint16) []byte {
	return []byte{0xfe, 0x00, 0x00, byte(statusFlags), byte(statusFlags >> 8)}
}

// TestReplyTracker_SimpleSelect covers spec §8 scenario 1: a SELECT that
// returns one column, one row. The reply visits Start -> RsetColDef ->
// RsetColDefEof -> RsetRows -> Done.
func TestReplyTracker_SimpleSelect(t *testing.T) {
	tr := NewReplyTracker(CmdQuery)

	require.NoError(t, tr.ProcessPacket([]byte{0x01})) // field_count = 1
	assert.Equal(t, ReplyRsetColDef, tr.State)
	assert.Equal(t, 1, tr.Meta.ColumnCount)

	require.NoError(t, tr.ProcessPacket([]byte("coldef")))
	assert.Equal(t, ReplyRsetColDefEof, tr.State)

	require.NoError(t, tr.ProcessPacket(eofPacket(0)))
	assert.Equal(t, ReplyRsetRows, tr.State)

	require.NoError(t, tr.ProcessPacket([]byte{0x01, '1'})) // one row, value "1"
	assert.Equal(t, ReplyRsetRows, tr.State)
	assert.Equal(t, 1, tr.Meta.Rows)

	require.NoError(t, tr.ProcessPacket(eofPacket(0)))
	assert.Equal(t, ReplyDone, tr.State)
}

// TestReplyTracker_SimpleSelect_MoreResultsExist covers the SERVER_MORE_
// RESULTS_EXIST continuation rule on the closing row-set EOF.
func TestReplyTracker_SimpleSelect_MoreResultsExist(t *testing.T) {
	tr := NewReplyTracker(CmdQuery)
	require.NoError(t, tr.ProcessPacket([]byte{0x01}))
	require.NoError(t, tr.ProcessPacket([]byte("coldef")))
	require.NoError(t, tr.ProcessPacket(eofPacket(0)))
	require.NoError(t, tr.ProcessPacket([]byte{0x01, '1'}))
	require.NoError(t, tr.ProcessPacket(eofPacket(uint16(flags.ServerMoreResultsExists))))
	assert.Equal(t, ReplyStart, tr.State)
}

// TestReplyTracker_Prepare covers spec §8 scenario 3: COM_STMT_PREPARE
// "SELECT ?" returning stmt_id=17, 1 column, 1 param.
func TestReplyTracker_Prepare(t *testing.T) {
	tr := NewReplyTracker(CmdStmtPrepare)

	// status=0, stmt_id=17 (LE), num_columns=1, num_params=1, reserved=0
	prepareOK := []byte{0x00, 17, 0, 0, 0, 1, 0, 1, 0, 0x00}
	require.NoError(t, tr.ProcessPacket(prepareOK))
	assert.Equal(t, ReplyRsetPrepare, tr.State)
	assert.EqualValues(t, 17, tr.Meta.GeneratedID)
	assert.Equal(t, 1, tr.Meta.ParamCount)
	assert.Equal(t, 1, tr.Meta.ColumnCount)

	// 1 param def + EOF + 1 col def + EOF = 4 packets.
	require.NoError(t, tr.ProcessPacket([]byte("paramdef")))
	require.NoError(t, tr.ProcessPacket(eofPacket(0)))
	require.NoError(t, tr.ProcessPacket([]byte("coldef")))
	assert.Equal(t, ReplyRsetPrepare, tr.State)
	require.NoError(t, tr.ProcessPacket(eofPacket(0)))
	assert.Equal(t, ReplyDone, tr.State)
}

// TestReplyTracker_PrepareNoColsNoParams covers a prepared statement with
// no result columns and no placeholders: the countdown is zero and the
// reply completes immediately off the PREPARE_OK packet alone.
func TestReplyTracker_PrepareNoColsNoParams(t *testing.T) {
	tr := NewReplyTracker(CmdStmtPrepare)
	prepareOK := []byte{0x00, 5, 0, 0, 0, 0, 0, 0, 0, 0x00}
	require.NoError(t, tr.ProcessPacket(prepareOK))
	assert.Equal(t, ReplyDone, tr.State)
}

// TestReplyTracker_LargeRowFollowedByEOF covers spec §8's large-packet
// boundary case one level above the wire: packetIO.readPacket is solely
// responsible for merging a max-size continuation chain into one logical
// packet, so by the time ProcessPacket sees it there is nothing left to
// special-case. A big row (standing in for whatever readPacket handed
// back after merging several wire packets) must count as exactly one
// row, and the terminating EOF that follows — a genuinely distinct
// logical packet, not a continuation — must still advance the state
// machine to Done.
func TestReplyTracker_LargeRowFollowedByEOF(t *testing.T) {
	tr := NewReplyTracker(CmdQuery)
	require.NoError(t, tr.ProcessPacket([]byte{0x01}))
	require.NoError(t, tr.ProcessPacket([]byte("coldef")))
	require.NoError(t, tr.ProcessPacket(eofPacket(0)))

	bigRow := make([]byte, 10) // stands in for a merged multi-megabyte row
	require.NoError(t, tr.ProcessPacket(bigRow))
	assert.Equal(t, 1, tr.Meta.Rows)
	assert.Equal(t, ReplyRsetRows, tr.State)

	require.NoError(t, tr.ProcessPacket(eofPacket(0)))
	assert.Equal(t, 1, tr.Meta.Rows, "the terminating EOF must not itself count as a row")
	assert.Equal(t, ReplyDone, tr.State, "a logical packet following a large row must still advance state")
}

// TestReplyTracker_ErrPacket covers an ERR response during Start.
func TestReplyTracker_ErrPacket(t *testing.T) {
	tr := NewReplyTracker(CmdQuery)
	errPkt := append([]byte{0xff, 0x20, 0x04, '#', 'H', 'Y', '0', '0', '0'}, []byte("bad thing")...)
	require.NoError(t, tr.ProcessPacket(errPkt))
	assert.Equal(t, ReplyDone, tr.State)
	require.NotNil(t, tr.Meta.Err)
	assert.EqualValues(t, 0x0420, tr.Meta.Err.Code)
	assert.Equal(t, "HY000", tr.Meta.Err.SQLState)
	assert.Equal(t, "bad thing", tr.Meta.Err.Message)
}

// TestReplyTracker_OKDone covers the minimal "no more results" case: a
// bare OK with no SERVER_MORE_RESULTS_EXISTS completes immediately.
func TestReplyTracker_OKDone(t *testing.T) {
	tr := NewReplyTracker(CmdQuery)
	require.NoError(t, tr.ProcessPacket(okPacket(0)))
	assert.Equal(t, ReplyDone, tr.State)
}

// TestReplyTracker_LocalInfile covers the LOCAL_INFILE request: the proxy
// marks load-active and completes this leg of the response; the server's
// subsequent OK/ERR starts a new one.
func TestReplyTracker_LocalInfile(t *testing.T) {
	tr := NewReplyTracker(CmdQuery)
	require.NoError(t, tr.ProcessPacket([]byte("\xfb/tmp/data.csv")))
	assert.Equal(t, ReplyDone, tr.State)
	assert.True(t, tr.Meta.loadActive)
}

func TestReplyTracker_Statistics(t *testing.T) {
	tr := NewReplyTracker(CmdStatistics)
	require.NoError(t, tr.ProcessPacket([]byte("Uptime: 1")))
	assert.Equal(t, ReplyDone, tr.State)
}

func TestReplyTracker_FieldList(t *testing.T) {
	tr := NewReplyTracker(CmdFieldList)
	require.NoError(t, tr.ProcessPacket([]byte("fielddef")))
	assert.Equal(t, ReplyRsetRows, tr.State)
}
