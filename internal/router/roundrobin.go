package router

import (
	"fmt"
	"sync/atomic"

	"github.com/relaydb/proxy/internal/backend"
	"github.com/relaydb/proxy/internal/errs"
	"github.com/relaydb/proxy/internal/model"
)

// RoundRobinFactory cycles through a fixed candidate list, skipping any
// server that is not Running or is Draining. The counter is shared across
// every session it produces, matching a stateless load-balancing router.
type RoundRobinFactory struct {
	candidates []*model.Server
	counter    atomic.Uint64
}

func NewRoundRobinFactory(candidates []*model.Server) *RoundRobinFactory {
	return &RoundRobinFactory{candidates: candidates}
}

func (f *RoundRobinFactory) NewSession(sessionID uint64) Session {
	return &roundRobinSession{factory: f, sessionID: sessionID}
}

type roundRobinSession struct {
	factory   *RoundRobinFactory
	sessionID uint64
	lastFail  map[*model.Server]struct{}
}

func (s *roundRobinSession) ChooseTarget(_ QueryInfo, _ State) (Target, error) {
	n := len(s.factory.candidates)
	if n == 0 {
		return Target{}, fmt.Errorf("router: no candidate servers configured")
	}
	for i := 0; i < n; i++ {
		idx := int(s.factory.counter.Add(1)-1) % n
		cand := s.factory.candidates[idx]
		if _, failed := s.lastFail[cand]; failed {
			continue
		}
		if cand.Status().Has(model.StatusDraining) {
			continue
		}
		if !cand.Running() {
			continue
		}
		return SingleTarget(cand), nil
	}
	return Target{}, fmt.Errorf("router: no healthy server available")
}

func (s *roundRobinSession) OnReply(_ *model.Server, _ backend.ReplyMeta) {}

func (s *roundRobinSession) OnError(endpoint *model.Server, kind errs.Kind) Decision {
	if kind.Retriable() {
		if s.lastFail == nil {
			s.lastFail = map[*model.Server]struct{}{}
		}
		s.lastFail[endpoint] = struct{}{}
		return Retry
	}
	return Fail
}

func (s *roundRobinSession) Capabilities() Capability { return 0 }

func (s *roundRobinSession) Movable() bool { return true }
