package constituent

import "fmt"

// VoteRequest is the requestVote RPC body of spec.md §6, translated
// from the teacher's protobuf-shaped rpc.VoteRequest into plain
// structs now that the wire format is JSON instead of protobuf (see
// DESIGN.md: network transport framing is an explicit Non-goal).
type VoteRequest struct {
	Term         uint64 `json:"term"`
	CandidateId  string `json:"candidateId"`
	PrevLogIndex uint64 `json:"prevLogIndex"`
	PrevLogTerm  uint64 `json:"prevLogTerm"`
}

func (r *VoteRequest) String() string {
	return fmt.Sprintf("VoteRequest{term: %d, candidateId: %s}", r.Term, r.CandidateId)
}

// VoteResponse is the requestVote RPC response of spec.md §6.
type VoteResponse struct {
	Term        uint64 `json:"term"`
	VoteGranted bool   `json:"voteGranted"`
}

// NotifyAllRequest is the notifyAll gossip body of spec.md §6.
type NotifyAllRequest struct {
	Endpoints []string `json:"endpoints"`
}
