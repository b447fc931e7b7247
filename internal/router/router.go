// Package router defines the external router contract: a factory that
// produces one router-session instance per client session, consulted to
// pick backend targets and to decide whether a failure is retriable.
package router

//go:generate mockgen -destination=mocks/router_mock.go -package=mocks github.com/relaydb/proxy/internal/router Factory,Session

import (
	"github.com/relaydb/proxy/internal/backend"
	"github.com/relaydb/proxy/internal/errs"
	"github.com/relaydb/proxy/internal/model"
)

// Capability is a bitmask a router declares so the runtime knows which
// optional backend behaviours it depends on.
type Capability uint32

const (
	CapSessionTracking Capability = 1 << iota
	CapContiguousOutput
	CapStatementTracking
)

func (c Capability) Has(f Capability) bool { return c&f != 0 }

// QueryInfo is what a router sees about the command it is choosing a
// target for.
type QueryInfo struct {
	Command     byte
	SQL         string
	Fingerprint string
}

// State is the session-level state a router may consult.
type State struct {
	InTransaction bool
	ReadOnly      bool
	Autocommit    bool
}

// Decision is a router's verdict on a backend error.
type Decision int

const (
	Fail Decision = iota
	Retry
)

// Target is either a single Endpoint or, for routers that fan a query out
// (e.g. a scatter-gather read), several.
type Target struct {
	Endpoints []*model.Server
}

func SingleTarget(s *model.Server) Target { return Target{Endpoints: []*model.Server{s}} }

// Session is the per-client-session router instance. All of its methods
// are invoked only from that session's owning worker goroutine, serially.
type Session interface {
	ChooseTarget(query QueryInfo, state State) (Target, error)
	OnReply(endpoint *model.Server, meta backend.ReplyMeta)
	OnError(endpoint *model.Server, kind errs.Kind) Decision
	Capabilities() Capability
	// Movable reports whether this session may be handed to another
	// worker by the rebalancer.
	Movable() bool
}

// Factory produces a Session for each newly accepted client connection.
type Factory interface {
	NewSession(sessionID uint64) Session
}
