package constituent

import "time"

// Peer is one other cluster member's address, as gossiped via
// notifyAll and dialed through the Transport (spec.md §6).
type Peer struct {
	Id       string
	Endpoint string
}

// Config is the Constituent's static configuration: the teacher's
// common.Config (common/config.go) generalised from a single leader +
// peer list into spec.md §3's symmetric N-peer role engine.
type Config struct {
	Id    string
	Peers []Peer

	// MinPing/MaxPing bound the Follower's randomized election timer
	// and the per-call RPC deadline (spec.md §5 "election RPCs carry a
	// per-call deadline equal to min_ping").
	MinPing time.Duration
	MaxPing time.Duration
}

// Size is the configured cluster size, self included.
func (c Config) Size() int {
	return len(c.Peers) + 1
}
