package store

import (
	"sort"
	"time"
)

type timeTableEntry struct {
	at   time.Time
	node *Node
}

// timeTable is the root-only ordered multimap from expiry timestamp to
// node (spec.md §3). It is kept as a slice sorted by `at` rather than
// a tree: the corpus never reaches for a general-purpose ordered-map
// library for this kind of small, single-writer priority structure,
// and the sweeper only ever needs the minimum key and a range-pop of
// everything at or before "now".
type timeTable struct {
	entries []timeTableEntry
}

func newTimeTable() *timeTable {
	return &timeTable{}
}

func (t *timeTable) insert(at time.Time, n *Node) {
	idx := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].at.After(at)
	})
	t.entries = append(t.entries, timeTableEntry{})
	copy(t.entries[idx+1:], t.entries[idx:])
	t.entries[idx] = timeTableEntry{at: at, node: n}
}

// removeExact erases the entry whose timestamp equals at AND whose
// node is identically n. Spec.md §9 flags the source's
// removeTimeToLive as comparing via assignment instead of identity;
// this is the corrected version.
func (t *timeTable) removeExact(at time.Time, n *Node) bool {
	for i, e := range t.entries {
		if e.at.Equal(at) && e.node == n {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (t *timeTable) earliest() (time.Time, bool) {
	if len(t.entries) == 0 {
		return time.Time{}, false
	}
	return t.entries[0].at, true
}

// extractExpired pops every entry due at or before now, in expiry
// order, and returns their nodes.
func (t *timeTable) extractExpired(now time.Time) []*Node {
	i := 0
	for i < len(t.entries) && !t.entries[i].at.After(now) {
		i++
	}
	if i == 0 {
		return nil
	}
	due := make([]*Node, i)
	for j := 0; j < i; j++ {
		due[j] = t.entries[j].node
	}
	t.entries = t.entries[i:]
	return due
}

func (t *timeTable) len() int {
	return len(t.entries)
}

func (t *timeTable) snapshot() []timeTableEntry {
	out := make([]timeTableEntry, len(t.entries))
	copy(out, t.entries)
	return out
}
