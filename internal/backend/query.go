package backend

import (
	"fmt"

	"github.com/relaydb/proxy/internal/errs"
	"github.com/relaydb/proxy/internal/protocol/mysql/packet"
)

// QueryRows issues a COM_QUERY outside of the normal reply-tracking path
// and decodes the text-protocol resultset into rows of strings (NULL
// becomes ""). It is meant for small administrative queries — the cluster
// monitor's membership refresh — not for client-routed traffic, which
// always goes through the reply-state machine so rows are never copied.
func (p *Proto) QueryRows(sql string) ([][]string, error) {
	if p.State != StateRouting {
		return nil, fmt.Errorf("backend: query issued outside Routing state")
	}
	p.conn.resetSequence()
	cmd := append([]byte{byte(CmdQuery)}, []byte(sql)...)
	if err := p.conn.writePacket(cmd); err != nil {
		return nil, errs.WithKind(errs.KindTransient, err)
	}

	first, err := p.conn.readPacket()
	if err != nil {
		return nil, errs.WithKind(errs.KindTransient, err)
	}
	if packet.IsErrPacket(first) {
		e := parseErrPacket(first)
		return nil, fmt.Errorf("backend: query error %d: %s", e.Code, e.Message)
	}
	if packet.IsOKPacket(first) {
		return nil, nil
	}

	r := packet.NewPayloadReader(first)
	fieldCount, err := r.LengthEncodedInt()
	if err != nil {
		return nil, fmt.Errorf("backend: field count: %w", err)
	}

	for i := uint64(0); i < fieldCount; i++ {
		if _, err := p.conn.readPacket(); err != nil {
			return nil, errs.WithKind(errs.KindTransient, err)
		}
	}
	if eof, err := p.conn.readPacket(); err != nil {
		return nil, errs.WithKind(errs.KindTransient, err)
	} else if !packet.IsEOFPacket(eof) {
		return nil, fmt.Errorf("backend: expected EOF after column definitions")
	}

	var rows [][]string
	for {
		payload, err := p.conn.readPacket()
		if err != nil {
			return nil, errs.WithKind(errs.KindTransient, err)
		}
		if packet.IsEOFPacket(payload) {
			break
		}
		if packet.IsErrPacket(payload) {
			e := parseErrPacket(payload)
			return rows, fmt.Errorf("backend: row error %d: %s", e.Code, e.Message)
		}
		row, err := decodeTextRow(payload, int(fieldCount))
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeTextRow(payload []byte, fieldCount int) ([]string, error) {
	r := packet.NewPayloadReader(payload)
	row := make([]string, 0, fieldCount)
	for i := 0; i < fieldCount; i++ {
		if b, ok := r.PeekU8(); ok && b == 0xfb {
			if _, err := r.U8(); err != nil {
				return nil, err
			}
			row = append(row, "")
			continue
		}
		v, err := r.LengthEncodedString()
		if err != nil {
			return nil, fmt.Errorf("backend: row field %d: %w", i, err)
		}
		row = append(row, v)
	}
	return row, nil
}

// Exec issues a COM_QUERY that is expected to return OK, not a resultset
// (e.g. `ALTER CLUSTER SOFTFAIL <nid>`).
func (p *Proto) Exec(sql string) error {
	if p.State != StateRouting {
		return fmt.Errorf("backend: exec issued outside Routing state")
	}
	p.conn.resetSequence()
	cmd := append([]byte{byte(CmdQuery)}, []byte(sql)...)
	if err := p.conn.writePacket(cmd); err != nil {
		return errs.WithKind(errs.KindTransient, err)
	}
	reply, err := p.conn.readPacket()
	if err != nil {
		return errs.WithKind(errs.KindTransient, err)
	}
	if packet.IsErrPacket(reply) {
		e := parseErrPacket(reply)
		return fmt.Errorf("backend: exec error %d: %s", e.Code, e.Message)
	}
	if !packet.IsOKPacket(reply) {
		return fmt.Errorf("backend: exec expected OK packet")
	}
	return nil
}
