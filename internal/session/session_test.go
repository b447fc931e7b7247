package session

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydb/proxy/internal/backend"
	"github.com/relaydb/proxy/internal/errs"
	"github.com/relaydb/proxy/internal/model"
	"github.com/relaydb/proxy/internal/router"
)

type stubRouterSession struct {
	movable bool
}

func (s *stubRouterSession) ChooseTarget(router.QueryInfo, router.State) (router.Target, error) {
	return router.Target{}, nil
}
func (s *stubRouterSession) OnReply(*model.Server, backend.ReplyMeta)           {}
func (s *stubRouterSession) OnError(*model.Server, errs.Kind) router.Decision { return router.Fail }
func (s *stubRouterSession) Capabilities() router.Capability                   { return 0 }
func (s *stubRouterSession) Movable() bool                                     { return s.movable }

func newTestSession(t *testing.T, rs router.Session) (*Session, net.Conn) {
	t.Helper()
	client, _ := net.Pipe()
	t.Cleanup(func() { client.Close() })
	return New(1, client, rs), client
}

func TestSession_EndpointForMissing(t *testing.T) {
	sess, _ := newTestSession(t, &stubRouterSession{movable: true})
	_, ok := sess.EndpointFor(model.NewServer("a", "127.0.0.1", 3306))
	assert.False(t, ok)
}

func TestSession_AddAndFindEndpoint(t *testing.T) {
	sess, _ := newTestSession(t, &stubRouterSession{movable: true})
	srv := model.NewServer("a", "127.0.0.1", 3306)
	ep := Endpoint{Server: srv}
	sess.AddEndpoint(ep)

	got, ok := sess.EndpointFor(srv)
	require.True(t, ok)
	assert.Same(t, srv, got.Server)

	other := model.NewServer("b", "127.0.0.1", 3306)
	_, ok = sess.EndpointFor(other)
	assert.False(t, ok)
}

func TestSession_MovableRequiresRouterAndNoStoredQuery(t *testing.T) {
	sess, _ := newTestSession(t, &stubRouterSession{movable: true})
	assert.True(t, sess.Movable())

	sess.StoredQuery = []byte("SELECT 1")
	assert.False(t, sess.Movable())

	sess.StoredQuery = nil
	sess.Router = &stubRouterSession{movable: false}
	assert.False(t, sess.Movable())
}

func TestSession_KillIsIdempotent(t *testing.T) {
	sess, _ := newTestSession(t, &stubRouterSession{movable: true})
	assert.False(t, sess.Closed())
	sess.Kill()
	assert.True(t, sess.Closed())
	sess.Kill() // must not panic or double-close
}

func TestSession_TouchUpdatesIdleTimers(t *testing.T) {
	sess, _ := newTestSession(t, &stubRouterSession{movable: true})
	time.Sleep(5 * time.Millisecond)
	readBefore, writeBefore := sess.IdleSince()
	sess.TouchRead()
	sess.TouchWrite()
	readAfter, writeAfter := sess.IdleSince()
	assert.LessOrEqual(t, readAfter, readBefore)
	assert.LessOrEqual(t, writeAfter, writeBefore)
}
