// Package worker implements RoutingWorker: a single goroutine that owns a
// disjoint set of sessions and drives all protocol and router code for
// them serially, communicating with other workers only via posted
// closures, in place of the source runtime's single-threaded epoll loop.
package worker

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ecodeclub/ekit/syncx"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/relaydb/proxy/internal/metrics"
	"github.com/relaydb/proxy/internal/model"
	"github.com/relaydb/proxy/internal/pool"
	"github.com/relaydb/proxy/internal/session"
)

// Config holds per-worker tunables sourced from the server/service config.
type Config struct {
	ConnectionTimeout time.Duration
	NetWriteTimeout   time.Duration
	TickInterval      time.Duration
}

// Worker is one fixed routing worker: dense id, private pool, private
// session registry. Workers are created at startup and never destroyed.
type Worker struct {
	ID     int
	logger *zap.Logger
	cfg    Config

	Pool *pool.Pool

	sessions syncx.Map[uint64, *session.Session]

	postCh   chan func()
	zombieCh chan *session.Session
	tickCBs  []func()

	pendingMove atomic.Pointer[rebalanceMove]

	heartbeats atomic.Int64

	shouldShutdown atomic.Bool
	stopped        chan struct{}

	metrics *metrics.Metrics
}

func New(id int, cfg Config, logger *zap.Logger) *Worker {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	return &Worker{
		ID:       id,
		logger:   logger.With(zap.Int("worker", id)),
		cfg:      cfg,
		Pool:     pool.New(),
		postCh:   make(chan func(), 256),
		zombieCh: make(chan *session.Session, 256),
		stopped:  make(chan struct{}),
	}
}

// WithMetrics attaches a Metrics instance this worker (and its pool)
// report to.
func (w *Worker) WithMetrics(m *metrics.Metrics) *Worker {
	w.metrics = m
	w.Pool.WithMetrics(m)
	return w
}

// Post delivers fn to this worker's next tick. Safe to call from any
// goroutine.
func (w *Worker) Post(fn func()) {
	select {
	case w.postCh <- fn:
	default:
		// Backlog full: block until the worker makes room rather than drop
		// a post, since a dropped cross-worker message (e.g. a rebalance
		// move) would leave state inconsistent.
		w.postCh <- fn
	}
}

// AddSession registers a newly accepted session with this worker.
func (w *Worker) AddSession(s *session.Session) {
	s.SetOwnerWorker(w.ID)
	w.sessions.Store(s.ID, s)
	w.updateSessionGauge()
}

func (w *Worker) updateSessionGauge() {
	if w.metrics != nil {
		w.metrics.SessionsActive.WithLabelValues(strconv.Itoa(w.ID)).Set(float64(w.sessionCount()))
	}
}

// Zombie enqueues a session for asynchronous destruction; draining the
// zombie queue may itself enqueue more zombies (e.g. a backend endpoint
// whose own teardown destroys further resources), so the tick step runs
// the queue to empty rather than processing a fixed snapshot.
func (w *Worker) Zombie(s *session.Session) {
	select {
	case w.zombieCh <- s:
	default:
		w.zombieCh <- s
	}
}

// RegisterTickCallback adds a per-tick callback (e.g. a router's
// performance-cache reader) run on step 3 of every tick.
func (w *Worker) RegisterTickCallback(fn func()) {
	w.tickCBs = append(w.tickCBs, fn)
}

// Run drives the worker's tick loop until ctx is cancelled or Shutdown is
// called. It is meant to be the body of the worker's single goroutine.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.stopped)
	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-w.postCh:
			fn()
		case <-ticker.C:
			w.tick()
			if w.shouldShutdown.Load() && w.sessionCount() == 0 {
				return
			}
		}
	}
}

func (w *Worker) sessionCount() int {
	n := 0
	w.sessions.Range(func(uint64, *session.Session) bool { n++; return true })
	return n
}

// tick runs the per-tick work order: expire idle sessions, destroy
// zombies to exhaustion, run registered callbacks, then apply any pending
// rebalance move.
func (w *Worker) tick() {
	w.heartbeats.Add(1)
	if w.heartbeats.Load()%10 == 0 {
		w.expireIdleSessions()
	}
	w.destroyZombies()
	for _, cb := range w.tickCBs {
		cb()
	}
	if mv := w.pendingMove.Swap(nil); mv != nil {
		w.applyRebalance(mv)
	}
}

// rebalanceMove is the message a coordinator posts to the busiest worker:
// move up to K movable sessions to dest.
type rebalanceMove struct {
	dest *Worker
	k    int
}

// RequestMove queues a rebalance move for this worker's next tick. Only
// one move may be pending at a time; a coordinator sampling once a second
// will not outrun a tick interval shorter than that, so a second request
// before the first is applied simply replaces it.
func (w *Worker) RequestMove(dest *Worker, k int) {
	w.pendingMove.Store(&rebalanceMove{dest: dest, k: k})
}

// applyRebalance selects up to mv.k movable sessions and reassigns them to
// mv.dest. For k=1 it picks the session with the highest IO activity (the
// source's own selection rule); for k>1 selection is unordered range
// iteration, matching the source's "arbitrary" rule. Moving a session is
// bookkeeping only: it is removed from this worker's registry and handed
// to the destination's next tick via Post, which re-adds it under the new
// owner id. The session's own connection goroutine discovers its new
// owner by reading Session.OwnerWorker() rather than holding a fixed
// worker reference, so in-flight commands are unaffected; processing
// inbound data concurrently with the move itself never happens because
// the move only ever runs from this worker's own tick, serially with any
// dispatch that also touches this worker's registry.
func (w *Worker) applyRebalance(mv *rebalanceMove) {
	if mv.dest == nil || mv.dest == w || mv.k <= 0 {
		return
	}

	var chosen []*session.Session
	if mv.k == 1 {
		var best *session.Session
		w.sessions.Range(func(_ uint64, s *session.Session) bool {
			if !s.Movable() {
				return true
			}
			if best == nil || s.IOActivity() > best.IOActivity() {
				best = s
			}
			return true
		})
		if best != nil {
			chosen = append(chosen, best)
		}
	} else {
		w.sessions.Range(func(_ uint64, s *session.Session) bool {
			if len(chosen) >= mv.k {
				return false
			}
			if s.Movable() {
				chosen = append(chosen, s)
			}
			return true
		})
	}

	for _, s := range chosen {
		w.sessions.Delete(s.ID)
		dest := mv.dest
		moved := s
		dest.Post(func() {
			dest.AddSession(moved)
		})
		w.logger.Info("rebalanced session", zap.Uint64("session", s.ID), zap.Int("to_worker", mv.dest.ID))
	}
	if len(chosen) > 0 {
		w.updateSessionGauge()
	}
}

func (w *Worker) expireIdleSessions() {
	w.sessions.Range(func(_ uint64, s *session.Session) bool {
		readIdle, writeIdle := s.IdleSince()
		if (w.cfg.ConnectionTimeout > 0 && readIdle > w.cfg.ConnectionTimeout) ||
			(w.cfg.NetWriteTimeout > 0 && writeIdle > w.cfg.NetWriteTimeout) {
			w.logger.Info("session idle timeout", zap.Uint64("session", s.ID))
			s.Kill()
			w.Zombie(s)
		}
		return true
	})
}

func (w *Worker) destroyZombies() {
	drained := false
	for {
		select {
		case s := <-w.zombieCh:
			w.sessions.Delete(s.ID)
			s.Kill()
			s.ReleaseEndpoints(w.offerEndpoint)
			drained = true
		default:
			if drained {
				w.updateSessionGauge()
			}
			return
		}
	}
}

// offerEndpoint tries to park a session's backend endpoint in this
// worker's pool rather than closing it outright, per the source's
// "destruction may donate backends to the pool" rule.
func (w *Worker) offerEndpoint(ep session.Endpoint) bool {
	if ep.Server == nil || ep.Proto == nil {
		return false
	}
	return w.Pool.Offer(&pool.Entry{Conn: ep.Proto, Server: ep.Server})
}

// EvictExpiredPools runs the pool's expiry sweep against every server this
// worker has pooled connections for. Callers typically register this via
// RegisterTickCallback.
func (w *Worker) EvictExpiredPools(servers []*model.Server) {
	for _, srv := range servers {
		w.Pool.EvictExpired(srv)
	}
}

// Shutdown marks the worker for cooperative shutdown: it runs the pool's
// expiry sweep for servers, kills any remaining sessions, and lets Run exit
// once both queues drain. The sweep closes every pooled entry of a server
// that is no longer running; for a running server it closes only hung-up,
// expired or over-limit entries, and the other pooled connections stay open.
// Callers should then wait on Stopped().
func (w *Worker) Shutdown(servers []*model.Server) {
	w.shouldShutdown.Store(true)
	w.Post(func() {
		for _, srv := range servers {
			w.Pool.EvictExpired(srv)
		}
		w.sessions.Range(func(_ uint64, s *session.Session) bool {
			s.Kill()
			// Force-close rather than offer: the worker is exiting, so a
			// pooled entry created now would never be taken or swept again.
			s.ReleaseEndpoints(nil)
			return true
		})
	})
}

// Stopped is closed once Run has returned.
func (w *Worker) Stopped() <-chan struct{} { return w.stopped }

// Group manages the fixed set of workers created at startup and their
// sequential join on shutdown.
type Group struct {
	Workers []*Worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewGroup(n int, cfg Config, logger *zap.Logger) *Group {
	g := &Group{}
	for i := 0; i < n; i++ {
		g.Workers = append(g.Workers, New(i, cfg, logger))
	}
	return g
}

// RebalanceConfig tunes the coordinator's load-sampling rebalancer.
type RebalanceConfig struct {
	// Window is the number of per-second samples averaged into each
	// worker's load figure.
	Window int
	// Threshold is the moving-average gap (busiest minus quietest) that
	// triggers a move.
	Threshold int
	// SampleInterval is how often a sample is taken; defaults to 1s,
	// matching the source's "one sample/second from a main-worker tick".
	SampleInterval time.Duration
	// MoveK is how many sessions to move per triggered rebalance; 1 picks
	// by highest IO activity, >1 is an arbitrary selection.
	MoveK int
}

// RunRebalancer samples every worker's session count on SampleInterval,
// keeps an N-sample moving average per worker (N=Window), and whenever the
// busiest-vs-quietest gap exceeds Threshold, posts a move request to the
// busiest worker. It runs until ctx is cancelled; callers should launch it
// in its own goroutine.
func (g *Group) RunRebalancer(ctx context.Context, cfg RebalanceConfig) {
	if cfg.Window <= 0 {
		cfg.Window = 10
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = time.Second
	}
	if cfg.MoveK <= 0 {
		cfg.MoveK = 1
	}

	n := len(g.Workers)
	if n < 2 {
		return
	}
	history := make([][]int, n)

	ticker := time.NewTicker(cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.rebalanceSample(history, cfg)
		}
	}
}

func (g *Group) rebalanceSample(history [][]int, cfg RebalanceConfig) {
	avgs := make([]float64, len(g.Workers))
	for i, w := range g.Workers {
		h := history[i]
		if len(h) >= cfg.Window {
			h = h[1:]
		}
		h = append(h, w.sessionCount())
		history[i] = h

		sum := 0
		for _, v := range h {
			sum += v
		}
		avgs[i] = float64(sum) / float64(len(h))
	}

	busiest, quietest := 0, 0
	for i := 1; i < len(avgs); i++ {
		if avgs[i] > avgs[busiest] {
			busiest = i
		}
		if avgs[i] < avgs[quietest] {
			quietest = i
		}
	}
	if busiest == quietest {
		return
	}
	if avgs[busiest]-avgs[quietest] > float64(cfg.Threshold) {
		g.Workers[busiest].RequestMove(g.Workers[quietest], cfg.MoveK)
	}
}

func (g *Group) Start(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)
	for _, w := range g.Workers {
		w := w
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			w.Run(ctx)
		}()
	}
}

// Shutdown broadcasts shutdown to every worker, then joins them
// sequentially, retrying every 100ms until each has drained its sessions
// or the context is done.
func (g *Group) Shutdown(ctx context.Context, servers []*model.Server) error {
	for _, w := range g.Workers {
		w.Shutdown(servers)
	}
	var result *multierror.Error
	for _, w := range g.Workers {
		ticker := time.NewTicker(100 * time.Millisecond)
	waitLoop:
		for {
			select {
			case <-w.Stopped():
				break waitLoop
			case <-ctx.Done():
				result = multierror.Append(result, ctx.Err())
				break waitLoop
			case <-ticker.C:
			}
		}
		ticker.Stop()
	}
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()
	return result.ErrorOrNil()
}
