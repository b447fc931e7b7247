// Package frontend implements the client-facing side of the proxy: the
// accept loop that assigns new connections to RoutingWorker goroutines, and
// the per-command dispatch that asks a session's router for a target,
// acquires the backend endpoint (pooled or freshly dialed), and streams the
// reply back to the client.
package frontend

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/relaydb/proxy/internal/backend"
	"github.com/relaydb/proxy/internal/errs"
	"github.com/relaydb/proxy/internal/model"
	"github.com/relaydb/proxy/internal/protocol/mysql/connection"
	"github.com/relaydb/proxy/internal/protocol/mysql/flags"
	"github.com/relaydb/proxy/internal/protocol/mysql/packet/builder"
	"github.com/relaydb/proxy/internal/router"
	"github.com/relaydb/proxy/internal/session"
	"github.com/relaydb/proxy/internal/worker"
)

// Service groups everything a listener needs to route and authenticate
// traffic for one `[name] type=service` section: the router factory, the
// candidate servers it may target, and the identity presented to those
// backends.
type Service struct {
	Name        string
	Factory     router.Factory
	Candidates  []*model.Server
	Username    string
	Password    string
	DialTimeout time.Duration
}

func (s *Service) dialTimeout() time.Duration {
	if s.DialTimeout > 0 {
		return s.DialTimeout
	}
	return 5 * time.Second
}

func (s *Service) credentials(database string, charset uint16) backend.Credentials {
	return backend.Credentials{
		Username: s.Username,
		Password: s.Password,
		Database: database,
		Charset:  charset,
	}
}

// Listener binds one accepted TCP/unix listener to a Service, distributing
// accepted connections across a worker.Group's workers in round-robin
// order. This stands in for the source runtime's shared, level-triggered
// epoll set: Go exposes no application-managed epoll, so instead of every
// worker racing to accept from one shared poll set, a single accept loop
// hands connections out round-robin, which gives the same "spread evenly,
// no connection starved" property without needing one.
type Listener struct {
	Name    string
	Service *Service
	Workers *worker.Group
	logger  *zap.Logger

	nextWorker atomic.Uint64
	nextConn   atomic.Uint64
}

func NewListener(name string, svc *Service, workers *worker.Group, logger *zap.Logger) *Listener {
	return &Listener{
		Name:    name,
		Service: svc,
		Workers: workers,
		logger:  logger.With(zap.String("listener", name)),
	}
}

// Serve accepts connections from ln until it errors or ctx is cancelled.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("frontend: accept on %s: %w", l.Name, err)
		}
		w := l.pickWorker()
		id := l.nextConn.Add(1)
		go l.serve(ctx, w, id, conn)
	}
}

func (l *Listener) pickWorker() *worker.Worker {
	workers := l.Workers.Workers
	idx := l.nextWorker.Add(1) - 1
	return workers[idx%uint64(len(workers))]
}

func (l *Listener) serve(ctx context.Context, w *worker.Worker, id uint64, client net.Conn) {
	rs := l.Service.Factory.NewSession(id)
	sess := session.New(id, client, rs)
	w.AddSession(sess)

	d := &dispatcher{ctx: ctx, listener: l, session: sess, logger: l.logger.With(zap.Uint64("session", id))}
	defer func() { d.currentWorker().Zombie(sess) }()

	mc := connection.NewConn(uint32(id), client, d.onCmd)
	if err := mc.Loop(); err != nil {
		d.logger.Debug("session ended", zap.Error(err))
	}
}

// dispatcher closes over the per-connection state onCmd needs; it is never
// touched outside the session's own goroutine. It does not pin a single
// *worker.Worker: a rebalance may reassign the session to a different
// worker between commands, so every access resolves the current owner via
// the session's own OwnerWorker id.
type dispatcher struct {
	ctx      context.Context
	listener *Listener
	session  *session.Session
	logger   *zap.Logger
}

// currentWorker returns the worker this session is registered with right
// now, which may have changed since the connection goroutine started if
// the coordinator rebalanced it.
func (d *dispatcher) currentWorker() *worker.Worker {
	workers := d.listener.Workers.Workers
	return workers[int(d.session.OwnerWorker())%len(workers)]
}

const (
	comQuit = 0x01
	comQuery = 0x03
	comInitDB = 0x02
)

func (d *dispatcher) onCmd(_ context.Context, mc *connection.Conn, payload []byte) error {
	d.session.TouchRead()

	cmd := byte(0)
	if len(payload) > 0 {
		cmd = payload[0]
	}
	if cmd == comQuit {
		return fmt.Errorf("client quit")
	}

	qi := router.QueryInfo{Command: cmd}
	if cmd == comQuery || cmd == comInitDB {
		qi.SQL = string(payload[1:])
	}
	state := router.State{
		InTransaction: d.session.Trx != session.TrxInactive,
		ReadOnly:      d.session.Trx == session.TrxActiveReadOnly,
		Autocommit:    d.session.Autocommit,
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		target, err := d.session.Router.ChooseTarget(qi, state)
		if err != nil {
			return d.writeErr(mc, mc.ClientCapabilityFlags(), fmt.Errorf("no backend available: %w", err))
		}
		if len(target.Endpoints) == 0 {
			return d.writeErr(mc, mc.ClientCapabilityFlags(), fmt.Errorf("router returned an empty target"))
		}
		srv := target.Endpoints[0]

		ep, err := d.endpointFor(srv)
		if err != nil {
			decision := d.session.Router.OnError(srv, errs.KindTransient)
			lastErr = err
			if decision == router.Retry {
				continue
			}
			return d.writeErr(mc, mc.ClientCapabilityFlags(), err)
		}

		err = ep.Proto.ProxyCommand(payload, false, func(pkt []byte) error {
			return mc.WritePacketPayload(pkt)
		})
		if err != nil {
			kind, _ := errs.KindOf(err)
			decision := d.session.Router.OnError(srv, kind)
			lastErr = err
			if decision == router.Retry {
				continue
			}
			return d.writeErr(mc, mc.ClientCapabilityFlags(), err)
		}

		reply := ep.Proto.LastReply()
		if reply.Err != nil && reply.Err.Code == errHostIsBlocked {
			srv.UpdateStatus(func(s model.Status) model.Status { return s.Set(model.StatusMaintenance) })
			d.session.Router.OnError(srv, errs.KindHostBlocked)
			d.logger.Warn("backend reported host blocked, placing server in maintenance",
				zap.String("server", srv.Name))
		}
		d.session.Router.OnReply(srv, reply)
		d.session.TouchWrite()
		return nil
	}
	return d.writeErr(mc, mc.ClientCapabilityFlags(), fmt.Errorf("exhausted retries: %w", lastErr))
}

// errHostIsBlocked is MySQL's ER_HOST_IS_BLOCKED: too many connection
// errors from this host, host blocked until `mysqladmin flush-hosts`.
// Spec §7 places the offending server in Maintenance until admin
// intervention rather than retrying routing to it.
const errHostIsBlocked = 1129

// endpointFor returns the session's existing connection to srv, or takes
// one from the worker's pool, or dials and authenticates a fresh one.
func (d *dispatcher) endpointFor(srv *model.Server) (session.Endpoint, error) {
	if ep, ok := d.session.EndpointFor(srv); ok {
		return ep, nil
	}

	creds := d.listener.Service.credentials("", 0)
	if entry, ok := d.currentWorker().Pool.Take(srv, creds); ok {
		ep := session.Endpoint{Server: srv, Proto: entry.Conn}
		d.session.AddEndpoint(ep)
		return ep, nil
	}

	dialer := net.Dialer{Timeout: d.listener.Service.dialTimeout()}
	raw, err := dialer.DialContext(d.ctx, "tcp", fmt.Sprintf("%s:%d", srv.Address, srv.Port))
	if err != nil {
		return session.Endpoint{}, fmt.Errorf("frontend: dial %s: %w", srv.Name, err)
	}
	proto := backend.NewProto(srv, raw, creds, d.logger)
	if err := proto.InitConnection(); err != nil {
		_ = proto.Close()
		return session.Endpoint{}, fmt.Errorf("frontend: init backend %s: %w", srv.Name, err)
	}
	ep := session.Endpoint{Server: srv, Proto: proto}
	d.session.AddEndpoint(ep)
	return ep, nil
}

func (d *dispatcher) writeErr(mc *connection.Conn, caps flags.CapabilityFlags, cause error) error {
	pkt := builder.NewErrorPacketBuilder(caps, builder.NewInternalError(cause)).Build()
	return mc.WritePacket(pkt)
}
