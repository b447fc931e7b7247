package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePath_InsertsVersionBeforeExtension(t *testing.T) {
	assert.Equal(t, "nodes.v1.db", StorePath("nodes.db"))
	assert.Equal(t, "/var/lib/relaydb/nodes.v1.db", StorePath("/var/lib/relaydb/nodes.db"))
	assert.Equal(t, "nodes.v1", StorePath("nodes"))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_BootstrapNodesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	nodes := []BootstrapNode{{IP: "10.0.0.1", MySQLPort: 3306}, {IP: "10.0.0.2", MySQLPort: 3306}}
	require.NoError(t, s.ReplaceBootstrapNodes(nodes))

	got, err := s.BootstrapNodes()
	require.NoError(t, err)
	assert.ElementsMatch(t, nodes, got)
}

func TestStore_ReplaceBootstrapNodesWipesPrevious(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ReplaceBootstrapNodes([]BootstrapNode{{IP: "10.0.0.1", MySQLPort: 3306}}))
	require.NoError(t, s.ReplaceBootstrapNodes([]BootstrapNode{{IP: "10.0.0.2", MySQLPort: 3306}}))

	got, err := s.BootstrapNodes()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "10.0.0.2", got[0].IP)
}

func TestStore_DynamicNodeUpsertThenDelete(t *testing.T) {
	s := newTestStore(t)
	n := DynamicNode{ID: 1, IP: "10.0.0.5", MySQLPort: 3306, HealthPort: 8000}
	require.NoError(t, s.UpsertDynamicNode(n))

	got, err := s.DynamicNodes()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, n, got[0])

	n.HealthPort = 8001
	require.NoError(t, s.UpsertDynamicNode(n))
	got, err = s.DynamicNodes()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 8001, got[0].HealthPort)

	require.NoError(t, s.DeleteDynamicNode(1))
	got, err = s.DynamicNodes()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_WipeDynamicNodes(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertDynamicNode(DynamicNode{ID: 1, IP: "10.0.0.5", MySQLPort: 3306, HealthPort: 8000}))
	require.NoError(t, s.WipeDynamicNodes())

	got, err := s.DynamicNodes()
	require.NoError(t, err)
	assert.Empty(t, got)
}
