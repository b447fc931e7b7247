// Package session holds the per-client Session entity: its backend
// endpoints, router instance, transaction state, and the stored-query
// buffer used while a backend connection is suspended between commands.
package session

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/relaydb/proxy/internal/backend"
	"github.com/relaydb/proxy/internal/model"
	"github.com/relaydb/proxy/internal/router"
)

// TrxState is the session's transaction-state bitmask.
type TrxState int

const (
	TrxInactive TrxState = iota
	TrxActive
	TrxActiveReadOnly
)

// Endpoint is one backend connection this session currently owns.
type Endpoint struct {
	Server *model.Server
	Proto  *backend.Proto
}

// Session belongs to exactly one RoutingWorker goroutine at any instant;
// every field below is touched only from that goroutine, per the runtime's
// single-writer-per-session invariant, so none of it needs its own lock.
// lastRead/lastWrite are the exception: the session's connection goroutine
// updates them on each command (TouchRead/TouchWrite) while the worker's
// idle-session scanner reads them from the worker goroutine, so they are
// stored as atomics.
type Session struct {
	ID uint64

	Client net.Conn

	Endpoints []Endpoint
	Router    router.Session

	Trx        TrxState
	Autocommit bool

	// StoredQuery holds a client command awaiting a backend endpoint; a
	// non-empty StoredQuery makes the session not Movable. Nothing in this
	// package or in the frontend dispatcher fills or flushes it: commands
	// that wait on a backend are queued by backend.Proto itself.
	StoredQuery []byte

	lastRead  atomic.Int64 // unix nanos
	lastWrite atomic.Int64

	// ioActivity counts read+write events, used by the rebalancer to pick
	// the busiest movable session when moving a single session (k=1).
	ioActivity atomic.Int64

	// owner is the dense id of the RoutingWorker this session is currently
	// assigned to. It is a plain int32, not a *worker.Worker, so that the
	// session package need not import worker (which already imports
	// session for its registry) — rebalancing reassigns this field and
	// reposts the session rather than moving any goroutine.
	owner atomic.Int32

	closed atomic.Bool
}

func New(id uint64, client net.Conn, rs router.Session) *Session {
	s := &Session{ID: id, Client: client, Router: rs, Autocommit: true}
	now := time.Now().UnixNano()
	s.lastRead.Store(now)
	s.lastWrite.Store(now)
	return s
}

func (s *Session) TouchRead() {
	s.lastRead.Store(time.Now().UnixNano())
	s.ioActivity.Add(1)
}

func (s *Session) TouchWrite() {
	s.lastWrite.Store(time.Now().UnixNano())
	s.ioActivity.Add(1)
}

// IOActivity returns the cumulative read+write event count, used to rank
// sessions when the rebalancer must pick just one to move.
func (s *Session) IOActivity() int64 { return s.ioActivity.Load() }

// OwnerWorker returns the dense id of the worker this session is currently
// registered with.
func (s *Session) OwnerWorker() int32 { return s.owner.Load() }

// SetOwnerWorker records which worker's registry currently holds this
// session; called by worker.Worker.AddSession and by the rebalancer when
// a session is reassigned.
func (s *Session) SetOwnerWorker(id int) { s.owner.Store(int32(id)) }

func (s *Session) IdleSince() (read, write time.Duration) {
	now := time.Now().UnixNano()
	return time.Duration(now - s.lastRead.Load()), time.Duration(now - s.lastWrite.Load())
}

// Movable reports whether this session may be reassigned to a different
// worker during rebalancing: it must have no stored query awaiting flush
// and the router must not object.
func (s *Session) Movable() bool {
	if len(s.StoredQuery) > 0 {
		return false
	}
	return s.Router == nil || s.Router.Movable()
}

// Kill closes the client side of the connection, unblocking whatever
// goroutine is parked in a read on it. It does not touch backend
// endpoints: those are disposed of separately by ReleaseEndpoints, which
// gets a chance to donate them to the pool before they are closed. Used
// both by the idle-session scanner (paired with a Zombie enqueue) and by
// shutdown.
func (s *Session) Kill() {
	if s.closed.CompareAndSwap(false, true) {
		_ = s.Client.Close()
	}
}

// ReleaseEndpoints disposes of every backend endpoint this session holds:
// each is first offered to the caller's pool via offer; any endpoint
// offer declines is closed directly. Called once, by the worker's zombie
// destruction step, after Kill has already closed the client side.
func (s *Session) ReleaseEndpoints(offer func(Endpoint) bool) {
	for _, ep := range s.Endpoints {
		if ep.Proto == nil {
			continue
		}
		if offer == nil || !offer(ep) {
			_ = ep.Proto.Close()
		}
	}
	s.Endpoints = nil
}

func (s *Session) Closed() bool { return s.closed.Load() }

// EndpointFor returns the endpoint this session already holds for server,
// if any.
func (s *Session) EndpointFor(server *model.Server) (Endpoint, bool) {
	for _, ep := range s.Endpoints {
		if ep.Server == server {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// AddEndpoint records a newly acquired backend connection against this
// session, so later commands against the same server reuse it.
func (s *Session) AddEndpoint(ep Endpoint) {
	s.Endpoints = append(s.Endpoints, ep)
}
