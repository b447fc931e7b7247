package model

import "sync/atomic"

// MembershipStatus is a cluster-membership-aware backend's self-reported
// role, as read from the hub's membership table (e.g. Clustrix's
// system.membership.status column: "quorum", "static", "dynamic").
type MembershipStatus int

const (
	MembershipUnknown MembershipStatus = iota
	MembershipQuorum
	MembershipStatic
	MembershipDynamic
)

// ParseMembershipStatus maps a membership table's status string to a
// MembershipStatus, defaulting to MembershipUnknown for anything else.
func ParseMembershipStatus(s string) MembershipStatus {
	switch s {
	case "quorum":
		return MembershipQuorum
	case "static":
		return MembershipStatic
	case "dynamic":
		return MembershipDynamic
	default:
		return MembershipUnknown
	}
}

// NodeSubstate refines Status for cluster-membership-aware backends
// (e.g. Clustrix's quorum/softfail substates).
type NodeSubstate int

const (
	SubstateNone NodeSubstate = iota
	SubstateSoftFailed
)

// ClusterNode is one member of a monitored cluster, backed by a Server
// object that routers actually read status from.
type ClusterNode struct {
	ID         int64
	IP         string
	MySQLPort  int
	HealthPort int
	Instance   string
	Status     MembershipStatus
	Substate   NodeSubstate

	// Server is the routing-facing object this node keeps in sync.
	Server *Server

	// countdown is decremented on every failed health ping and reset to
	// HealthCheckThreshold on success; the node is "running" iff > 0.
	countdown atomic.Int64
}

func NewClusterNode(id int64, ip string, mysqlPort, healthPort int, threshold int64, srv *Server) *ClusterNode {
	n := &ClusterNode{
		ID:         id,
		IP:         ip,
		MySQLPort:  mysqlPort,
		HealthPort: healthPort,
		Server:     srv,
	}
	n.countdown.Store(threshold)
	return n
}

// RecordPingSuccess resets the countdown to threshold.
func (n *ClusterNode) RecordPingSuccess(threshold int64) {
	n.countdown.Store(threshold)
	n.Server.UpdateStatus(func(s Status) Status { return s.Set(StatusRunning) })
}

// RecordPingFailure decrements the countdown and reports whether it just
// crossed into "not running" (i.e. reached exactly 0 on this call, not on
// every call once it's already there).
func (n *ClusterNode) RecordPingFailure() (justWentDown bool) {
	v := n.countdown.Add(-1)
	if v == 0 {
		n.Server.UpdateStatus(func(s Status) Status { return s.Clear(StatusRunning) })
		return true
	}
	if v < 0 {
		n.countdown.Store(0)
	}
	return false
}

// Running reports whether this node's countdown is still positive.
func (n *ClusterNode) Running() bool {
	return n.countdown.Load() > 0
}
