// Package pool implements the per-server, per-worker idle-backend-connection
// pool described in the runtime's routing design: a FIFO deque of
// authenticated backend connections that can be handed to a new session via
// COM_CHANGE_USER instead of paying for a fresh handshake.
package pool

import (
	"sync"
	"time"

	"github.com/relaydb/proxy/internal/backend"
	"github.com/relaydb/proxy/internal/metrics"
	"github.com/relaydb/proxy/internal/model"
)

// Entry is one pooled backend connection: its protocol state machine, when
// it was created, and whether idle I/O has been observed on it (which
// means the peer closed or sent something unsolicited, either way making
// the entry unusable).
type Entry struct {
	Conn      *backend.Proto
	Server    *model.Server
	CreatedAt time.Time

	mu     sync.Mutex
	hungUp bool
}

// MarkHungUp is called by the worker's idle-connection handler the moment
// any event fires on a pooled fd — per the pool's invariant, an
// authenticated connection should be silent while parked.
func (e *Entry) MarkHungUp() {
	e.mu.Lock()
	e.hungUp = true
	e.mu.Unlock()
}

func (e *Entry) isHungUp() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hungUp
}

// Pool holds one FIFO deque per server name. A Pool belongs to exactly one
// worker; the mutex only guards against the worker's own accept path and
// tick path overlapping, not cross-worker access — pools are never shared
// across workers.
type Pool struct {
	mu      sync.Mutex
	deques  map[string][]*Entry
	metrics *metrics.Metrics
}

func New() *Pool {
	return &Pool{deques: map[string][]*Entry{}}
}

// WithMetrics attaches a Metrics instance that Take/Offer/evictions report
// to; nil (the default) disables reporting.
func (p *Pool) WithMetrics(m *metrics.Metrics) *Pool {
	p.metrics = m
	return p
}

// Take pops the first usable entry for server, restoring it to service
// under creds via Proto.Reuse. Entries that fail the liveness or reuse
// check are closed and the next one is tried.
func (p *Pool) Take(server *model.Server, creds backend.Credentials) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.evictExpiredLocked(server)

	q := p.deques[server.Name]
	for len(q) > 0 {
		entry := q[0]
		q = q[1:]
		if entry.isHungUp() {
			entry.Conn.Close()
			continue
		}
		if !entry.Conn.Reuse(creds) {
			entry.Conn.Close()
			continue
		}
		p.deques[server.Name] = q
		p.recordTake(server.Name, "hit")
		p.updateSizeGauge(server.Name)
		return entry, true
	}
	p.deques[server.Name] = q
	p.recordTake(server.Name, "miss")
	return nil, false
}

func (p *Pool) recordTake(server, outcome string) {
	if p.metrics != nil {
		p.metrics.PoolTakes.WithLabelValues(server, outcome).Inc()
	}
}

func (p *Pool) updateSizeGauge(server string) {
	if p.metrics != nil {
		p.metrics.PoolSize.WithLabelValues(server).Set(float64(len(p.deques[server])))
	}
}

// Offer parks a connection for later reuse. It is rejected unless
// pool_max > 0, the server is running, the connection reports established,
// the entry is not hung up, and the deque is not already at capacity.
func (p *Pool) Offer(entry *Entry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	reject := func() bool {
		p.recordOffer(entry.Server.Name, "rejected")
		return false
	}

	if entry.Server.PoolMax <= 0 {
		return reject()
	}
	if !entry.Server.Running() {
		return reject()
	}
	if !entry.Conn.Established() {
		return reject()
	}
	if entry.isHungUp() {
		return reject()
	}
	q := p.deques[entry.Server.Name]
	if len(q) >= entry.Server.PoolMax {
		return reject()
	}
	entry.CreatedAt = time.Now()
	p.deques[entry.Server.Name] = append(q, entry)
	p.recordOffer(entry.Server.Name, "accepted")
	p.updateSizeGauge(entry.Server.Name)
	return true
}

func (p *Pool) recordOffer(server, outcome string) {
	if p.metrics != nil {
		p.metrics.PoolOffers.WithLabelValues(server, outcome).Inc()
	}
}

// EvictExpired sweeps server's deque, closing and removing every entry
// that is hung up, older than persist_max_time, or in excess of pool_max,
// or every entry at all if the server is no longer running.
func (p *Pool) EvictExpired(server *model.Server) []*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evictExpiredLocked(server)
}

func (p *Pool) evictExpiredLocked(server *model.Server) []*Entry {
	q := p.deques[server.Name]
	if len(q) == 0 {
		return nil
	}

	maxAge := time.Duration(server.PoolMaxAge) * time.Second
	running := server.Running()

	var kept, evicted []*Entry
	for _, e := range q {
		expired := e.isHungUp() || !running
		if !expired && maxAge > 0 && time.Since(e.CreatedAt) > maxAge {
			expired = true
		}
		if !expired && server.PoolMax > 0 && len(kept) >= server.PoolMax {
			expired = true
		}
		if expired {
			evicted = append(evicted, e)
		} else {
			kept = append(kept, e)
		}
	}
	p.deques[server.Name] = kept
	for _, e := range evicted {
		e.Conn.Close()
	}
	if p.metrics != nil && len(evicted) > 0 {
		p.metrics.PoolEvictions.WithLabelValues(server.Name, "expired").Add(float64(len(evicted)))
		p.updateSizeGauge(server.Name)
	}
	return evicted
}

// Evict removes one specific entry, called from the trivial idle-fd
// handler the moment it observes I/O on a pooled connection.
func (p *Pool) Evict(entry *Entry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	q := p.deques[entry.Server.Name]
	for i, e := range q {
		if e == entry {
			p.deques[entry.Server.Name] = append(q[:i:i], q[i+1:]...)
			entry.Conn.Close()
			if p.metrics != nil {
				p.metrics.PoolEvictions.WithLabelValues(entry.Server.Name, "idle_io").Inc()
				p.updateSizeGauge(entry.Server.Name)
			}
			return true
		}
	}
	return false
}

// Len reports how many entries are currently parked for server.
func (p *Pool) Len(serverName string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.deques[serverName])
}
