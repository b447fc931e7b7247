package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydb/proxy/internal/errs"
	"github.com/relaydb/proxy/internal/model"
)

func runningServer(name string) *model.Server {
	s := model.NewServer(name, "127.0.0.1", 3306)
	s.SetStatus(model.StatusRunning)
	return s
}

func TestRoundRobinFactory_NoCandidates(t *testing.T) {
	f := NewRoundRobinFactory(nil)
	sess := f.NewSession(1)
	_, err := sess.ChooseTarget(QueryInfo{}, State{})
	require.Error(t, err)
}

func TestRoundRobinFactory_CyclesCandidates(t *testing.T) {
	a, b := runningServer("a"), runningServer("b")
	f := NewRoundRobinFactory([]*model.Server{a, b})
	sess := f.NewSession(1)

	seen := map[*model.Server]int{}
	for i := 0; i < 4; i++ {
		target, err := sess.ChooseTarget(QueryInfo{}, State{})
		require.NoError(t, err)
		require.Len(t, target.Endpoints, 1)
		seen[target.Endpoints[0]]++
	}
	assert.Equal(t, 2, seen[a])
	assert.Equal(t, 2, seen[b])
}

func TestRoundRobinFactory_SkipsNonRunning(t *testing.T) {
	up := runningServer("up")
	down := model.NewServer("down", "127.0.0.1", 3306) // status 0: not running
	f := NewRoundRobinFactory([]*model.Server{down, up})
	sess := f.NewSession(1)

	for i := 0; i < 3; i++ {
		target, err := sess.ChooseTarget(QueryInfo{}, State{})
		require.NoError(t, err)
		assert.Same(t, up, target.Endpoints[0])
	}
}

func TestRoundRobinFactory_SkipsDraining(t *testing.T) {
	draining := runningServer("draining")
	draining.UpdateStatus(func(s model.Status) model.Status { return s.Set(model.StatusDraining) })
	up := runningServer("up")
	f := NewRoundRobinFactory([]*model.Server{draining, up})
	sess := f.NewSession(1)

	target, err := sess.ChooseTarget(QueryInfo{}, State{})
	require.NoError(t, err)
	assert.Same(t, up, target.Endpoints[0])
}

func TestRoundRobinSession_OnError(t *testing.T) {
	f := NewRoundRobinFactory(nil)
	sess := f.NewSession(1)

	assert.Equal(t, Retry, sess.OnError(runningServer("a"), errs.KindTransient))
	assert.Equal(t, Fail, sess.OnError(runningServer("a"), errs.KindAuthFailed))
}

func TestRoundRobinSession_MovableAndCapabilities(t *testing.T) {
	f := NewRoundRobinFactory(nil)
	sess := f.NewSession(1)
	assert.True(t, sess.Movable())
	assert.Equal(t, Capability(0), sess.Capabilities())
}
