package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaydb/proxy/internal/metrics"
	"github.com/relaydb/proxy/internal/model"
)

func TestSameBootstrapSet(t *testing.T) {
	a := []BootstrapNode{{IP: "10.0.0.1", MySQLPort: 3306}, {IP: "10.0.0.2", MySQLPort: 3306}}
	b := []BootstrapNode{{IP: "10.0.0.2", MySQLPort: 3306}, {IP: "10.0.0.1", MySQLPort: 3306}}
	assert.True(t, sameBootstrapSet(a, b))

	c := []BootstrapNode{{IP: "10.0.0.1", MySQLPort: 3306}}
	assert.False(t, sameBootstrapSet(a, c))

	d := []BootstrapNode{{IP: "10.0.0.1", MySQLPort: 3306}, {IP: "10.0.0.3", MySQLPort: 3306}}
	assert.False(t, sameBootstrapSet(a, d))
}

func TestParseMembershipRows(t *testing.T) {
	rows := [][]string{{"1", "quorum", "primary", ""}, {"2", "unexpected", "replica", ""}, {"bad"}}
	got := parseMembershipRows(rows)
	require.Len(t, got, 2)
	assert.Equal(t, "primary", got[1].instance)
	assert.Equal(t, model.MembershipQuorum, got[1].status)
	assert.Equal(t, model.MembershipUnknown, got[2].status, "an unrecognized status string defaults to unknown")
}

func TestParseNodeInfoRows(t *testing.T) {
	rows := [][]string{
		{"1", "10.0.0.1", "3306", "8000", ""},
		{"2", "10.0.0.2", "3306", "8000", "2"},
		{"short"},
	}
	got := parseNodeInfoRows(rows)
	require.Len(t, got, 2)
	assert.False(t, got[1].softFailed)
	assert.True(t, got[2].softFailed)
	assert.Equal(t, "10.0.0.2", got[2].ip)
}

func TestMonitor_ReconcileBootstrapSetWipesOnChange(t *testing.T) {
	store := newTestStore(t)
	m := NewMonitor(Config{
		Name:           "m1",
		BootstrapNodes: []BootstrapNode{{IP: "10.0.0.1", MySQLPort: 3306}},
	}, store, zap.NewNop())

	require.NoError(t, m.reconcileBootstrapSet())
	got, err := store.BootstrapNodes()
	require.NoError(t, err)
	assert.Equal(t, []BootstrapNode{{IP: "10.0.0.1", MySQLPort: 3306}}, got)

	require.NoError(t, store.UpsertDynamicNode(DynamicNode{ID: 1, IP: "10.0.0.9", MySQLPort: 3306, HealthPort: 8000}))

	m2 := NewMonitor(Config{
		Name:           "m1",
		BootstrapNodes: []BootstrapNode{{IP: "10.0.0.2", MySQLPort: 3306}},
	}, store, zap.NewNop())
	require.NoError(t, m2.reconcileBootstrapSet())

	dynamic, err := store.DynamicNodes()
	require.NoError(t, err)
	assert.Empty(t, dynamic, "changing the bootstrap set must wipe stale dynamic nodes")
}

func TestMonitor_FlushStatusMetricsPublishesGauges(t *testing.T) {
	store := newTestStore(t)
	m := NewMonitor(Config{Name: "m1", Metrics: metrics.New()}, store, zap.NewNop())

	srv := model.NewServer("@@m1:node-1", "10.0.0.1", 3306)
	srv.SetStatus(model.StatusRunning)
	node := model.NewClusterNode(1, "10.0.0.1", 3306, 8000, 3, srv)
	m.nodes[1] = node

	m.flushStatusMetrics() // must not panic with a real metrics instance wired
}
