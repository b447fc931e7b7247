package cluster

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relaydb/proxy/internal/backend"
	"github.com/relaydb/proxy/internal/metrics"
	"github.com/relaydb/proxy/internal/model"
)

// Config holds one monitor's static configuration (from the config
// file's [monitor] section).
type Config struct {
	Name                   string
	BootstrapNodes         []BootstrapNode
	MonitorUser            string
	MonitorPassword        string
	ClusterMonitorInterval time.Duration
	HealthCheckThreshold   int64
	HealthCheckPort        int
	HTTPClient             *http.Client
	Metrics                *metrics.Metrics
}

// Monitor runs as its own goroutine (one per configured cluster monitor,
// not a RoutingWorker), refreshing cluster membership and node health.
type Monitor struct {
	cfg    Config
	store  *Store
	logger *zap.Logger

	mu    sync.Mutex
	nodes map[int64]*model.ClusterNode

	hub     *backend.Proto
	hubMu   sync.Mutex
	recheck bool
}

func NewMonitor(cfg Config, store *Store, logger *zap.Logger) *Monitor {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Monitor{
		cfg:    cfg,
		store:  store,
		logger: logger.With(zap.String("monitor", cfg.Name)),
		nodes:  map[int64]*model.ClusterNode{},
	}
}

// Run loops until ctx is cancelled, performing one tick per
// cluster_monitor_interval.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.reconcileBootstrapSet(); err != nil {
		return err
	}
	ticker := time.NewTicker(m.cfg.ClusterMonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if m.hub != nil {
				_ = m.hub.Close()
			}
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) reconcileBootstrapSet() error {
	persisted, err := m.store.BootstrapNodes()
	if err != nil {
		return err
	}
	if !sameBootstrapSet(persisted, m.cfg.BootstrapNodes) {
		m.logger.Info("bootstrap set changed, wiping persisted cluster state")
		if err := m.store.ReplaceBootstrapNodes(m.cfg.BootstrapNodes); err != nil {
			return err
		}
		if err := m.store.WipeDynamicNodes(); err != nil {
			return err
		}
	}
	return nil
}

func sameBootstrapSet(a, b []BootstrapNode) bool {
	if len(a) != len(b) {
		return false
	}
	seen := map[string]bool{}
	for _, n := range a {
		seen[fmt.Sprintf("%s:%d", n.IP, n.MySQLPort)] = true
	}
	for _, n := range b {
		if !seen[fmt.Sprintf("%s:%d", n.IP, n.MySQLPort)] {
			return false
		}
	}
	return true
}

func (m *Monitor) tick(ctx context.Context) {
	m.mu.Lock()
	due := m.recheck
	m.mu.Unlock()

	if due || m.hub == nil || !m.hub.Established() {
		if err := m.refreshMembership(ctx); err != nil {
			m.logger.Warn("membership refresh failed", zap.Error(err))
		}
		m.mu.Lock()
		m.recheck = false
		m.mu.Unlock()
	}
	m.pingAll(ctx)
	m.flushStatusMetrics()
	if err := m.persist(); err != nil {
		m.logger.Warn("persisting node set failed", zap.Error(err))
	}
}

// flushStatusMetrics publishes the RUNNING/MASTER/DRAINING bits of every
// tracked node's backing Server as gauges, per spec §4.5 step 4 ("flush
// server-status changes").
func (m *Monitor) flushStatusMetrics() {
	if m.cfg.Metrics == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.nodes {
		st := n.Server.Status()
		for name, bit := range map[string]model.Status{
			"running":  model.StatusRunning,
			"master":   model.StatusMaster,
			"draining": model.StatusDraining,
		} {
			v := 0.0
			if st.Has(bit) {
				v = 1.0
			}
			m.cfg.Metrics.ServerStatus.WithLabelValues(n.Server.Name, name).Set(v)
		}
	}
}

// selectHub tries dynamic nodes, then bootstrap nodes, then persisted
// nodes from the last run, accepting the first that authenticates and
// reports quorum membership.
func (m *Monitor) selectHub(ctx context.Context) (*backend.Proto, error) {
	var candidates []struct {
		ip   string
		port int
	}
	m.mu.Lock()
	for _, n := range m.nodes {
		candidates = append(candidates, struct {
			ip   string
			port int
		}{n.IP, n.MySQLPort})
	}
	m.mu.Unlock()
	for _, n := range m.cfg.BootstrapNodes {
		candidates = append(candidates, struct {
			ip   string
			port int
		}{n.IP, n.MySQLPort})
	}
	if persisted, err := m.store.DynamicNodes(); err == nil {
		for _, n := range persisted {
			candidates = append(candidates, struct {
				ip   string
				port int
			}{n.IP, n.MySQLPort})
		}
	}

	for _, c := range candidates {
		proto, err := m.dialAndAuth(ctx, c.ip, c.port)
		if err != nil {
			continue
		}
		if m.isPartOfQuorum(proto) {
			return proto, nil
		}
		_ = proto.Close()
	}
	return nil, fmt.Errorf("cluster: no hub candidate accepted")
}

func (m *Monitor) dialAndAuth(ctx context.Context, ip string, port int) (*backend.Proto, error) {
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	proto := backend.NewProto(model.NewServer("", ip, port), conn, backend.Credentials{
		Username: m.cfg.MonitorUser,
		Password: m.cfg.MonitorPassword,
	}, m.logger)
	if err := proto.InitConnection(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return proto, nil
}

// isPartOfQuorum treats a successful membership query against the
// candidate as proof of quorum membership; the source's exact predicate
// is backend-engine-specific and not reproduced here.
func (m *Monitor) isPartOfQuorum(proto *backend.Proto) bool {
	_, err := proto.QueryRows(`SELECT nid, status, instance, substate FROM system.membership`)
	return err == nil
}

type membershipRow struct {
	id       int64
	status   model.MembershipStatus
	instance string
}

type nodeInfoRow struct {
	id         int64
	ip         string
	mysqlPort  int
	healthPort int
	softFailed bool
}

func (m *Monitor) refreshMembership(ctx context.Context) error {
	m.hubMu.Lock()
	defer m.hubMu.Unlock()

	if m.hub == nil || !m.hub.Established() {
		hub, err := m.selectHub(ctx)
		if err != nil {
			return err
		}
		m.hub = hub
	}

	memberRows, err := m.hub.QueryRows(`SELECT nid, status, instance, substate FROM system.membership`)
	if err != nil {
		_ = m.hub.Close()
		m.hub = nil
		return err
	}
	infoRows, err := m.hub.QueryRows(`
		SELECT ni.nodeid, ni.iface_ip, ni.mysql_port, ni.healthmon_port, sn.nodeid
		FROM system.nodeinfo ni LEFT JOIN system.softfailed_nodes sn ON ni.nodeid=sn.nodeid
	`)
	if err != nil {
		_ = m.hub.Close()
		m.hub = nil
		return err
	}

	members := parseMembershipRows(memberRows)
	infos := parseNodeInfoRows(infoRows)

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := map[int64]bool{}
	for id, info := range infos {
		seen[id] = true
		node, ok := m.nodes[id]
		if !ok {
			srv := model.NewServer(fmt.Sprintf("@@%s:node-%d", m.cfg.Name, id), info.ip, info.mysqlPort)
			srv.HealthPort = info.healthPort
			node = model.NewClusterNode(id, info.ip, info.mysqlPort, info.healthPort, m.cfg.HealthCheckThreshold, srv)
			m.nodes[id] = node
		} else {
			node.IP = info.ip
			node.MySQLPort = info.mysqlPort
			node.HealthPort = info.healthPort
		}
		if info.softFailed {
			node.Substate = model.SubstateSoftFailed
			node.Server.UpdateStatus(func(s model.Status) model.Status { return s.Set(model.StatusDraining) })
		} else {
			node.Substate = model.SubstateNone
			node.Server.UpdateStatus(func(s model.Status) model.Status { return s.Clear(model.StatusDraining) })
		}
		if mem, ok := members[id]; ok {
			node.Instance = mem.instance
			node.Status = mem.status
		}
	}

	for id, node := range m.nodes {
		if !seen[id] {
			node.Server.UpdateStatus(func(s model.Status) model.Status { return s.Clear(model.StatusRunning).Clear(model.StatusJoined) })
			delete(m.nodes, id)
			_ = m.store.DeleteDynamicNode(id)
		}
	}
	return nil
}

func parseMembershipRows(rows [][]string) map[int64]membershipRow {
	out := map[int64]membershipRow{}
	for _, r := range rows {
		if len(r) < 4 {
			continue
		}
		id, _ := strconv.ParseInt(r[0], 10, 64)
		out[id] = membershipRow{id: id, status: model.ParseMembershipStatus(r[1]), instance: r[2]}
	}
	return out
}

func parseNodeInfoRows(rows [][]string) map[int64]nodeInfoRow {
	out := map[int64]nodeInfoRow{}
	for _, r := range rows {
		if len(r) < 5 {
			continue
		}
		id, _ := strconv.ParseInt(r[0], 10, 64)
		port, _ := strconv.Atoi(r[2])
		healthPort, _ := strconv.Atoi(r[3])
		out[id] = nodeInfoRow{id: id, ip: r[1], mysqlPort: port, healthPort: healthPort, softFailed: r[4] != ""}
	}
	return out
}

// pingAll launches one concurrent HTTP GET per known node, each bounded by
// interval/10, updating countdowns and status from the results.
func (m *Monitor) pingAll(ctx context.Context) {
	m.mu.Lock()
	nodes := make([]*model.ClusterNode, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	m.mu.Unlock()

	timeout := m.cfg.ClusterMonitorInterval / 10
	if timeout <= 0 {
		timeout = time.Second
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, n := range nodes {
		n := n
		g.Go(func() error {
			if m.cfg.Metrics != nil {
				m.cfg.Metrics.HealthCheckTotal.WithLabelValues(m.cfg.Name, strconv.FormatInt(n.ID, 10)).Inc()
			}
			reachable := m.httpHealthCheck(gctx, n, timeout)
			if !reachable && m.cfg.Metrics != nil {
				m.cfg.Metrics.HealthCheckFailures.WithLabelValues(m.cfg.Name, strconv.FormatInt(n.ID, 10)).Inc()
			}
			if reachable {
				n.RecordPingSuccess(m.cfg.HealthCheckThreshold)
			} else if n.RecordPingFailure() {
				m.logger.Info("node transitioned to not running", zap.Int64("node", n.ID))
				m.mu.Lock()
				m.recheck = true
				m.mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Monitor) httpHealthCheck(ctx context.Context, n *model.ClusterNode, timeout time.Duration) bool {
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	url := fmt.Sprintf("http://%s:%d/", n.IP, n.HealthPort)
	req, err := http.NewRequestWithContext(hctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (m *Monitor) persist() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, n := range m.nodes {
		if err := m.store.UpsertDynamicNode(DynamicNode{ID: id, IP: n.IP, MySQLPort: n.MySQLPort, HealthPort: n.HealthPort}); err != nil {
			return err
		}
	}
	return nil
}

// SoftFail runs `ALTER CLUSTER SOFTFAIL <nid>` on the hub; on success it
// sets the Draining status bit and schedules an early membership recheck.
func (m *Monitor) SoftFail(ctx context.Context, nodeID int64) error {
	return m.alterCluster(ctx, nodeID, "SOFTFAIL", model.StatusDraining, true)
}

// UnSoftFail reverses SoftFail.
func (m *Monitor) UnSoftFail(ctx context.Context, nodeID int64) error {
	return m.alterCluster(ctx, nodeID, "UNSOFTFAIL", model.StatusDraining, false)
}

func (m *Monitor) alterCluster(ctx context.Context, nodeID int64, verb string, bit model.Status, set bool) error {
	m.hubMu.Lock()
	defer m.hubMu.Unlock()
	if m.hub == nil || !m.hub.Established() {
		hub, err := m.selectHub(ctx)
		if err != nil {
			return err
		}
		m.hub = hub
	}
	if err := m.hub.Exec(fmt.Sprintf("ALTER CLUSTER %s %d", verb, nodeID)); err != nil {
		return err
	}
	m.mu.Lock()
	if n, ok := m.nodes[nodeID]; ok {
		if set {
			n.Server.UpdateStatus(func(s model.Status) model.Status { return s.Set(bit) })
		} else {
			n.Server.UpdateStatus(func(s model.Status) model.Status { return s.Clear(bit) })
		}
	}
	m.recheck = true
	m.mu.Unlock()
	return nil
}

// Servers returns every backend Server this monitor currently tracks, for
// router wiring.
func (m *Monitor) Servers() []*model.Server {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Server, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n.Server)
	}
	return out
}
