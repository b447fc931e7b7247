package backend

// TestSetRouting forces p into an established Routing state without
// driving the handshake/auth state machine, for tests in other packages
// (pool, worker) that need a pool-ready backend connection without
// standing up a real MySQL server.
func TestSetRouting(p *Proto) {
	p.State = StateRouting
	p.reply = &ReplyTracker{State: ReplyDone}
	p.IgnoreReplies = 0
	p.delayQueue = nil
}
