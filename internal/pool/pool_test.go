package pool

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydb/proxy/internal/backend"
	"github.com/relaydb/proxy/internal/model"
	"go.uber.org/zap"
)

func newEstablishedProto(t *testing.T, srv *model.Server) *backend.Proto {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	p := backend.NewProto(srv, client, backend.Credentials{}, zap.NewNop())
	backend.TestSetRouting(p)
	return p
}

func runningServer(name string, poolMax int) *model.Server {
	s := model.NewServer(name, "127.0.0.1", 3306)
	s.SetStatus(model.StatusRunning)
	s.PoolMax = poolMax
	return s
}

func TestPool_OfferRejectsWhenPoolMaxZero(t *testing.T) {
	srv := runningServer("a", 0)
	p := New()
	entry := &Entry{Conn: newEstablishedProto(t, srv), Server: srv}
	assert.False(t, p.Offer(entry))
}

func TestPool_OfferAcceptsThenRejectsAtCapacity(t *testing.T) {
	srv := runningServer("a", 1)
	p := New()

	first := &Entry{Conn: newEstablishedProto(t, srv), Server: srv}
	require.True(t, p.Offer(first))
	assert.Equal(t, 1, p.Len("a"))

	second := &Entry{Conn: newEstablishedProto(t, srv), Server: srv}
	assert.False(t, p.Offer(second))
	assert.Equal(t, 1, p.Len("a"))
}

func TestPool_OfferRejectsWhenServerNotRunning(t *testing.T) {
	srv := model.NewServer("a", "127.0.0.1", 3306)
	srv.PoolMax = 5
	p := New()
	entry := &Entry{Conn: newEstablishedProto(t, srv), Server: srv}
	assert.False(t, p.Offer(entry))
}

func TestPool_EvictExpiredByAge(t *testing.T) {
	srv := runningServer("a", 5)
	srv.PoolMaxAge = 1 // seconds
	p := New()
	entry := &Entry{Conn: newEstablishedProto(t, srv), Server: srv}
	require.True(t, p.Offer(entry))
	entry.CreatedAt = time.Now().Add(-2 * time.Second)

	evicted := p.EvictExpired(srv)
	require.Len(t, evicted, 1)
	assert.Equal(t, 0, p.Len("a"))
}

func TestPool_EvictExpiredWhenServerDown(t *testing.T) {
	srv := runningServer("a", 5)
	p := New()
	entry := &Entry{Conn: newEstablishedProto(t, srv), Server: srv}
	require.True(t, p.Offer(entry))

	srv.SetStatus(0) // no longer running
	evicted := p.EvictExpired(srv)
	assert.Len(t, evicted, 1)
}

func TestPool_EvictSpecificEntry(t *testing.T) {
	srv := runningServer("a", 5)
	p := New()
	entry := &Entry{Conn: newEstablishedProto(t, srv), Server: srv}
	require.True(t, p.Offer(entry))

	assert.True(t, p.Evict(entry))
	assert.Equal(t, 0, p.Len("a"))
	assert.False(t, p.Evict(entry)) // already gone
}

func TestPool_OfferRejectsHungUpEntry(t *testing.T) {
	srv := runningServer("a", 5)
	p := New()
	entry := &Entry{Conn: newEstablishedProto(t, srv), Server: srv}
	entry.MarkHungUp()
	assert.False(t, p.Offer(entry))
}
