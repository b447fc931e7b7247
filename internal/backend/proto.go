// Package backend implements the per-backend MySQL wire-protocol state
// machine: handshake, authentication (including SSL upgrade and
// auth-plugin switch), connection-init queries, packet-by-packet reply
// tracking, and connection re-use via COM_CHANGE_USER.
package backend

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/relaydb/proxy/internal/errs"
	"github.com/relaydb/proxy/internal/model"
	"github.com/relaydb/proxy/internal/protocol/mysql/flags"
	"github.com/relaydb/proxy/internal/protocol/mysql/packet"
)

// State is the outer connection-lifecycle state machine.
type State int

const (
	StateHandshaking State = iota
	StateAuthenticating
	StateConnectionInit
	StateSendDelayQ
	StateRouting
	StateFailed
)

// Credentials are the client identity this backend connection
// authenticates as.
type Credentials struct {
	Username         string
	Password         string
	Database         string
	Charset          uint16
	InitQueries      []string
	WantSSL          bool
	WantSessionTrack bool
}

// Proto is one backend connection's protocol state machine. It belongs to
// exactly one worker at any instant and must never be touched off-worker.
type Proto struct {
	Server *model.Server
	creds  Credentials
	logger *zap.Logger

	conn *packetIO
	raw  net.Conn

	State        State
	handshake    *ServerHandshake
	capabilities flags.CapabilityFlags

	reply *ReplyTracker

	IgnoreReplies int
	ChangingUser  bool
	delayQueue    [][]byte

	authenticator func(packet []byte) (response []byte, done bool, err error)
}

// NewProto dials nothing by itself; callers create the net.Conn (so the
// worker's connect path controls timeouts/TLS) and pass it in.
func NewProto(srv *model.Server, conn net.Conn, creds Credentials, logger *zap.Logger) *Proto {
	return &Proto{
		Server: srv,
		creds:  creds,
		logger: logger,
		conn:   newPacketIO(conn),
		raw:    conn,
		State:  StateHandshaking,
	}
}

// InitConnection optionally emits a PROXY protocol v1 header, then drives
// the handshake/auth/init-query state machine to completion (Routing or
// Failed).
func (p *Proto) InitConnection() error {
	if p.Server.ProxyProtocol {
		if local, peer := p.raw.LocalAddr(), p.raw.RemoteAddr(); local != nil && peer != nil {
			if _, err := p.raw.Write([]byte(ProxyProtocolV1Header(peer, local))); err != nil {
				return errs.WithKind(errs.KindTransient, fmt.Errorf("proxy protocol header: %w", err))
			}
		}
	}
	for p.State != StateRouting && p.State != StateFailed {
		if err := p.OnReadable(); err != nil {
			return err
		}
	}
	if p.State == StateFailed {
		return errs.WithKind(errs.KindAuthFailed, fmt.Errorf("backend connection init failed"))
	}
	return nil
}

// OnReadable drives the outer state machine one step.
func (p *Proto) OnReadable() error {
	switch p.State {
	case StateHandshaking:
		return p.stepHandshake()
	case StateAuthenticating:
		return p.stepAuth()
	case StateConnectionInit:
		return p.stepConnectionInit()
	case StateSendDelayQ:
		return p.stepSendDelayQ()
	case StateRouting:
		return p.stepRouting()
	default:
		return errs.WithKind(errs.KindTransient, fmt.Errorf("backend: on_readable in Failed state"))
	}
}

func (p *Proto) fail(kind errs.Kind, err error) error {
	p.State = StateFailed
	return errs.WithKind(kind, err)
}

func (p *Proto) stepHandshake() error {
	payload, err := p.conn.readPacket()
	if err != nil {
		return p.fail(errs.KindTransient, err)
	}
	hs, err := ParseServerHandshake(payload)
	if err != nil {
		return p.fail(errs.KindBadPacket, err)
	}
	p.handshake = hs

	if p.creds.WantSSL && hs.Capabilities.Has(flags.ClientSSL) {
		if err := p.upgradeSSL(hs); err != nil {
			return p.fail(errs.KindTransient, err)
		}
	}

	p.capabilities = NegotiateCapabilities(NegotiateOptions{
		ClientCapabilities: hs.Capabilities,
		WantSSL:            p.creds.WantSSL,
		WantSessionTrack:   p.creds.WantSessionTrack,
		HasInitialDatabase: p.creds.Database != "",
	})

	resp := p.buildHandshakeResponse(hs)
	if err := p.conn.writePacket(resp); err != nil {
		return p.fail(errs.KindTransient, err)
	}
	p.State = StateAuthenticating
	return nil
}

func (p *Proto) upgradeSSL(hs *ServerHandshake) error {
	sslReq := p.buildSSLRequest()
	if err := p.conn.writePacket(sslReq); err != nil {
		return err
	}
	tlsConn := tls.Client(p.raw, &tls.Config{
		ServerName:         p.Server.Address,
		InsecureSkipVerify: !p.Server.TLS.VerifyPeerCert,
	})
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("ssl handshake: %w", err)
	}
	p.raw = tlsConn
	p.conn = newPacketIO(tlsConn)
	p.conn.sequence = 2
	return nil
}

func (p *Proto) buildSSLRequest() []byte {
	buf := make([]byte, 4, 32)
	buf = append(buf, 0, 0, 0, 0) // capability flags, filled below
	caps := NegotiateCapabilities(NegotiateOptions{
		ClientCapabilities: p.handshake.Capabilities,
		WantSSL:            true,
		WantSessionTrack:   p.creds.WantSessionTrack,
		HasInitialDatabase: p.creds.Database != "",
	})
	putU32LE(buf[4:8], uint32(caps))
	buf = append(buf, 0, 0, 0, 1) // max_packet_size placeholder, set below
	putU32LE(buf[8:12], 1<<24-1)
	buf = append(buf, byte(p.creds.Charset))
	buf = append(buf, make([]byte, 19)...) // reserved
	return buf
}

func putU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func (p *Proto) buildHandshakeResponse(hs *ServerHandshake) []byte {
	b := make([]byte, 4, 128)
	b = append(b, 0, 0, 0, 0)
	putU32LE(b[4:8], uint32(p.capabilities))
	b = append(b, 0, 0, 0, 0)
	putU32LE(b[8:12], 1<<24-1)
	b = append(b, byte(p.creds.Charset))
	b = append(b, make([]byte, 19)...)
	if !p.capabilities.Has(flags.ClientProtocol41) {
		// protocol <4.1 not supported beyond this point
	} else {
		b = append(b, make([]byte, 4)...) // extra capabilities (upper 32 bits), unused
	}
	b = append(b, []byte(p.creds.Username)...)
	b = append(b, 0)
	token := scramblePassword(hs.Scramble, p.creds.Password)
	b = append(b, byte(len(token)))
	b = append(b, token...)
	if p.capabilities.Has(flags.ClientConnectWithDB) {
		b = append(b, []byte(p.creds.Database)...)
		b = append(b, 0)
	}
	if p.capabilities.Has(flags.ClientPluginAuth) {
		b = append(b, []byte("mysql_native_password")...)
		b = append(b, 0)
	}
	return b
}

func (p *Proto) stepAuth() error {
	payload, err := p.conn.readPacket()
	if err != nil {
		return p.fail(errs.KindTransient, err)
	}
	switch {
	case packet.IsOKPacket(payload):
		p.State = StateConnectionInit
		return nil
	case packet.IsErrPacket(payload):
		return p.fail(errs.KindAuthFailed, fmt.Errorf("backend auth failed: %s", string(payload)))
	default:
		// Auth-switch-request or further plugin exchange. mysql_native_password
		// is the only plugin this proxy speaks; respond with the scramble
		// derived from whatever scramble accompanied this packet.
		scramble, ok := parseAuthSwitchScramble(payload)
		if !ok {
			return p.fail(errs.KindAuthFailed, fmt.Errorf("unsupported auth exchange packet"))
		}
		resp := ScrambleForAuthSwitch(scramble, p.creds.Password)
		if err := p.conn.writePacket(resp); err != nil {
			return p.fail(errs.KindTransient, err)
		}
		return nil
	}
}

func parseAuthSwitchScramble(payload []byte) ([20]byte, bool) {
	var out [20]byte
	if len(payload) == 0 || payload[0] != 0xfe {
		return out, false
	}
	r := packet.NewPayloadReader(payload[1:])
	plugin, err := r.NullTerminatedString()
	if err != nil || plugin != "mysql_native_password" {
		return out, false
	}
	rest := r.Rest()
	if len(rest) < 20 {
		return out, false
	}
	copy(out[:], rest[:20])
	return out, true
}

func (p *Proto) stepConnectionInit() error {
	if len(p.creds.InitQueries) == 0 {
		p.State = StateSendDelayQ
		return nil
	}
	for _, q := range p.creds.InitQueries {
		cmd := append([]byte{0x03}, []byte(q)...)
		if err := p.conn.writePacket(cmd); err != nil {
			return p.fail(errs.KindTransient, err)
		}
		reply, err := p.conn.readPacket()
		if err != nil {
			return p.fail(errs.KindTransient, err)
		}
		if !packet.IsOKPacket(reply) {
			return p.fail(errs.KindInitQueryFailed, fmt.Errorf("init query %q did not return OK", q))
		}
	}
	p.State = StateSendDelayQ
	return nil
}

func (p *Proto) stepSendDelayQ() error {
	for _, pkt := range p.delayQueue {
		if err := p.conn.writePacket(pkt); err != nil {
			return p.fail(errs.KindTransient, err)
		}
	}
	p.delayQueue = nil
	p.State = StateRouting
	return nil
}

func (p *Proto) stepRouting() error {
	payload, err := p.conn.readPacket()
	if err != nil {
		return p.fail(errs.KindTransient, err)
	}
	return p.trackReply(payload)
}

func (p *Proto) trackReply(payload []byte) error {
	if p.reply == nil {
		return nil
	}
	// A COM_CHANGE_USER in flight may be answered with an AuthSwitchRequest
	// instead of the expected OK/ERR; this is a protocol-level exchange, not
	// resultset shape, so it is handled here rather than by ReplyTracker.
	if p.ChangingUser && packet.IsAuthSwitchRequest(payload) {
		scramble, ok := parseAuthSwitchScramble(payload)
		if !ok {
			return p.fail(errs.KindAuthFailed, fmt.Errorf("change-user: unsupported auth exchange packet"))
		}
		resp := ScrambleForAuthSwitch(scramble, p.creds.Password)
		if err := p.conn.writePacket(resp); err != nil {
			return p.fail(errs.KindTransient, err)
		}
		return nil
	}
	if err := p.reply.ProcessPacket(payload); err != nil {
		return p.fail(errs.KindBadPacket, err)
	}
	if p.reply.State == ReplyDone {
		if p.IgnoreReplies > 0 {
			p.IgnoreReplies--
		}
		if p.ChangingUser && p.IgnoreReplies == 0 {
			p.ChangingUser = false
		}
	}
	return nil
}

// AwaitReply blocks until the current reply reaches Done, discarding
// packet content. Used to synchronously swallow an ignorable command's
// reply (ping, change-user) in the goroutine-per-connection model, where
// the caller already owns this connection exclusively.
func (p *Proto) AwaitReply() error {
	for p.reply != nil && p.reply.State != ReplyDone {
		payload, err := p.conn.readPacket()
		if err != nil {
			return p.fail(errs.KindTransient, err)
		}
		if err := p.trackReply(payload); err != nil {
			return err
		}
	}
	return nil
}

// ProxyCommand writes cmdPacket and streams the backend's reply back
// through onPacket, one raw packet at a time, until the reply-state
// machine reaches Done. When collect is true (the "collect result" flag),
// packets are buffered and only handed to onPacket once the full reply has
// arrived.
func (p *Proto) ProxyCommand(cmdPacket []byte, collect bool, onPacket func(payload []byte) error) error {
	if err := p.Write(cmdPacket, false); err != nil {
		return err
	}
	var buffered [][]byte
	for p.reply.State != ReplyDone {
		payload, err := p.conn.readPacket()
		if err != nil {
			return p.fail(errs.KindTransient, err)
		}
		if err := p.trackReply(payload); err != nil {
			return err
		}
		switch {
		case collect:
			buffered = append(buffered, payload)
		case onPacket != nil:
			if err := onPacket(payload); err != nil {
				return err
			}
		}
	}
	if collect && onPacket != nil {
		for _, pkt := range buffered {
			if err := onPacket(pkt); err != nil {
				return err
			}
		}
	}
	return nil
}

// Write accepts a client command packet (including the command byte) and
// always attaches a fresh ReplyTracker, since any routed command needs its
// reply state tracked whether or not the caller buffers it. Buffering
// itself is a concern of ProxyCommand, not Write; ignorable marks the
// reply for swallowing by incrementing IgnoreReplies.
func (p *Proto) Write(cmdPacket []byte, ignorable bool) error {
	switch p.State {
	case StateRouting:
		if len(cmdPacket) > 0 && Command(cmdPacket[0]) == CmdChangeUser {
			resp := BuildChangeUser(p.handshake.Scramble, p.creds.Username, p.creds.Password, p.creds.Database, p.creds.Charset)
			p.ChangingUser = true
			p.IgnoreReplies++
			p.conn.resetSequence()
			if err := p.conn.writePacket(resp); err != nil {
				return p.fail(errs.KindTransient, err)
			}
			p.reply = NewReplyTracker(CmdChangeUser)
			return nil
		}
		p.conn.resetSequence()
		if err := p.conn.writePacket(cmdPacket); err != nil {
			return p.fail(errs.KindTransient, err)
		}
		if ignorable {
			p.IgnoreReplies++
		}
		cmd := Command(0)
		if len(cmdPacket) > 0 {
			cmd = Command(cmdPacket[0])
		}
		p.reply = NewReplyTracker(cmd)
		return nil
	case StateHandshaking, StateAuthenticating, StateConnectionInit, StateSendDelayQ:
		p.delayQueue = append(p.delayQueue, cmdPacket)
		return nil
	default:
		return errs.WithKind(errs.KindTransient, errs.ErrConnClosed)
	}
}

// Ping writes a reserved "ignorable ping" packet whose reply is swallowed.
func (p *Proto) Ping() error {
	if p.reply != nil && p.reply.State != ReplyDone {
		return fmt.Errorf("backend: ping requires an idle (Done) connection")
	}
	return p.Write([]byte{0x0e}, true)
}

// Established reports whether this connection is ready to accept new
// work: routing, no outstanding ignored replies, no stored query.
func (p *Proto) Established() bool {
	return p.State == StateRouting && p.IgnoreReplies == 0 && len(p.delayQueue) == 0 &&
		(p.reply == nil || p.reply.State == ReplyDone)
}

// Reuse attempts to hand this pooled, idle connection to a new session
// under new credentials. It refuses unless the connection is in Routing
// state with nothing outstanding, matching the pool's take() precondition.
// On success it rewrites the identity with a COM_CHANGE_USER and blocks
// until that exchange completes, so the connection Take returns is
// immediately Established for the caller.
func (p *Proto) Reuse(creds Credentials) bool {
	if p.State != StateRouting || p.IgnoreReplies != 0 || len(p.delayQueue) != 0 {
		return false
	}
	if p.reply != nil && p.reply.State != ReplyDone {
		return false
	}
	p.creds = creds
	if err := p.Write([]byte{byte(CmdChangeUser)}, false); err != nil {
		return false
	}
	if err := p.AwaitReply(); err != nil {
		return false
	}
	return p.State == StateRouting
}

// Close releases the underlying connection.
func (p *Proto) Close() error {
	return p.raw.Close()
}

// SetDeadline applies a read/write deadline to the underlying connection,
// used by the worker's idle-session scanner.
func (p *Proto) SetDeadline(d time.Duration) error {
	if d <= 0 {
		return p.raw.SetDeadline(time.Time{})
	}
	return p.raw.SetDeadline(time.Now().Add(d))
}

// UnderlyingConn exposes the raw connection for pool bookkeeping (e.g.
// detecting unsolicited I/O while pooled).
func (p *Proto) UnderlyingConn() net.Conn {
	return p.raw
}

// LastReply returns the most recently completed reply's metadata, for a
// router's OnReply hook. Zero value if no command has completed yet.
func (p *Proto) LastReply() ReplyMeta {
	if p.reply == nil {
		return ReplyMeta{}
	}
	return p.reply.Meta
}
