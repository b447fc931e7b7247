package backend

import "github.com/relaydb/proxy/internal/protocol/mysql/flags"

// NegotiateOptions carries the per-session inputs that influence the
// capability mask sent in the handshake response, per capability
// negotiation rules: the client's own mask is ANDed against a fixed
// compatible bitset, then OR'd with whatever this connection additionally
// requires.
type NegotiateOptions struct {
	ClientCapabilities flags.CapabilityFlags
	WantSSL            bool
	WantSessionTrack   bool
	HasInitialDatabase bool
}

// NegotiateCapabilities computes the capability mask the proxy advertises
// to the backend in its handshake response.
func NegotiateCapabilities(opts NegotiateOptions) flags.CapabilityFlags {
	caps := flags.CapabilityFlags(uint64(opts.ClientCapabilities) & uint64(flags.ClientCompatibleMask))

	if opts.WantSSL {
		caps = caps.Set(flags.ClientSSL)
	}
	if opts.WantSessionTrack {
		caps = caps.Set(flags.ClientSessionTrack)
	}
	caps = caps.Set(flags.ClientMultiStatements)
	if opts.HasInitialDatabase {
		caps = caps.Set(flags.ClientConnectWithDB)
	}
	caps = caps.Set(flags.ClientPluginAuth)

	return caps
}
