package constituent

// Persister is the subset of the Replicator/Agent external collaborator
// (spec.md §2) the Constituent depends on directly: durable (term,
// voted_for) storage, keyed by term left-padded to width 20 per
// spec.md §6, plus the on-leadership-acquired hook that rebuilds the
// Replicator's in-memory derived state.
type Persister interface {
	// LoadLatest returns the highest-keyed persisted (term, votedFor)
	// record, or ok=false if the store has never persisted one.
	LoadLatest() (term uint64, votedFor string, ok bool)

	// SaveVote durably persists a (term, votedFor) change. A failure
	// here is logged but does not block the in-memory role transition
	// (spec.md §9: "a failed persist on the leader-election record is
	// logged but does not prevent the state transition in memory").
	SaveVote(term uint64, votedFor string) error

	// OnLeadershipAcquired is invoked once, synchronously, on entry to
	// the Leader role so the Replicator can rebuild derived state
	// before any write is accepted.
	OnLeadershipAcquired()
}
