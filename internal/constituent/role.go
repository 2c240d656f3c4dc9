package constituent

import "github.com/ehz500/arangodb/internal/util/fsm"

// Role is this node's place in the election state machine (spec.md
// §3). The teacher's analogous node_fsm.go enumerates leaderState/
// followerState/candidateState as an unexported int; these are the
// same three states made exported since the rest of the package (and
// its tests) need to branch on them directly.
type Role fsm.State

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// The following event types drive the guard-rail FSM in
// internal/util/fsm: every role change the Constituent's loop performs
// is checked against roleTransitions before it is committed, so a bug
// in the loop (e.g. Candidate jumping straight to Candidate again) is
// rejected and logged by transitionLocked instead of silently
// corrupting role state.

// electionTimeoutEvent fires when a Follower's randomized sleep window
// elapses with no vote cast and no request answered.
type electionTimeoutEvent struct{ term uint64 }

// majorityGrantedEvent fires when a Candidate collects a strict
// majority of votes for its own term.
type majorityGrantedEvent struct{ term uint64 }

// splitVoteEvent fires when a Candidate's sleep window elapses without
// a majority.
type splitVoteEvent struct{ term uint64 }

// higherTermEvent fires whenever any RPC response or incoming request
// carries a term greater than the node's current term.
type higherTermEvent struct{ term uint64 }

var roleTransitions = map[fsm.State][]fsm.Transition{
	fsm.State(Follower): {
		{EventType: electionTimeoutEvent{}, To: fsm.State(Candidate)},
		{EventType: higherTermEvent{}, To: fsm.State(Follower)},
	},
	fsm.State(Candidate): {
		{EventType: majorityGrantedEvent{}, To: fsm.State(Leader)},
		{EventType: splitVoteEvent{}, To: fsm.State(Follower)},
		{EventType: higherTermEvent{}, To: fsm.State(Follower)},
	},
	fsm.State(Leader): {
		{EventType: higherTermEvent{}, To: fsm.State(Follower)},
	},
}

func newRoleFSM() *fsm.FSM {
	return fsm.NewFSM(fsm.State(Follower), roleTransitions, nil)
}
