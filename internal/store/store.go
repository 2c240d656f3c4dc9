// Package store implements the Agency Store of spec.md §4.1: a
// replicated hierarchical key-value tree accepting atomic
// transactions with optional preconditions, TTL expiry, and observer
// notifications.
package store

import (
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ehz500/arangodb/internal/transport"
)

// Transaction is one entry of a write query: either [ops] or
// [ops, precondition], per spec.md §4.1.
type Transaction []json.RawMessage

// Store is the root node plus the process-wide state spec.md §3
// describes: the time table, the store lock, and the wake condition
// the TTL sweeper waits on. The wake condition is modelled as a
// single-slot channel rather than sync.Cond, since the sweeper needs a
// *timed* wait (deadline = earliest TTL, or a fixed ceiling) and
// sync.Cond has no timeout primitive.
type Store struct {
	mu sync.Mutex

	root      *Node
	timeTable *timeTable

	wake chan struct{}

	transport transport.Transport
	log       *log.Entry
}

func New(t transport.Transport) *Store {
	s := &Store{
		timeTable: newTimeTable(),
		wake:      make(chan struct{}, 1),
		transport: t,
		log:       log.WithField("component", "store"),
	}
	s.root = newRoot(s)
	return s
}

// Apply runs each transaction in order under a single acquisition of
// the store lock, skipping (not aborting the batch on) a failed
// precondition. Any other shape yields false for that entry.
func (s *Store) Apply(txns []Transaction) []bool {
	results := make([]bool, len(txns))

	s.mu.Lock()
	var touched []*Node
	for i, txn := range txns {
		switch len(txn) {
		case 1:
			ok, t := s.applyOneLocked(txn[0])
			results[i] = ok
			touched = append(touched, t...)
		case 2:
			if s.check(txn[1]) {
				ok, t := s.applyOneLocked(txn[0])
				results[i] = ok
				touched = append(touched, t...)
			} else {
				s.log.Debug("precondition failed")
				results[i] = false
			}
		default:
			s.log.Error("transaction must have one or two elements")
			results[i] = false
		}
	}
	s.mu.Unlock()
	s.signal()

	s.dispatchNotifications(touched)
	return results
}

// ApplyExternal applies a batch of op-objects unconditionally (no
// preconditions). Used by the TTL sweeper to submit synthetic delete
// batches, and by any other internal pipe that bypasses the precondition
// layer entirely.
func (s *Store) ApplyExternal(ops []json.RawMessage) []bool {
	results := make([]bool, len(ops))

	s.mu.Lock()
	var touched []*Node
	for i, op := range ops {
		ok, t := s.applyOneLocked(op)
		results[i] = ok
		touched = append(touched, t...)
	}
	s.mu.Unlock()
	s.signal()

	s.dispatchNotifications(touched)
	return results
}

func (s *Store) applyOneLocked(raw json.RawMessage) (bool, []*Node) {
	tracker := newMutationTracker()
	ok := s.root.applyValue(raw, tracker)
	return ok, tracker.list()
}

// signal wakes anything blocked in WaitForWake. It never blocks: the
// wake channel is a single-slot mailbox, so a writer that fires while
// the sweeper is mid-sweep leaves a pending wake for the sweeper's next
// loop instead of piling up sends.
func (s *Store) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// WaitForWake blocks until the next writer signals the store's wake
// channel, or timeout elapses, whichever comes first. The TTL sweeper
// calls this with a deadline equal to the earliest time_table entry (or
// a fixed ceiling if the time table is empty) so that a write which
// schedules an earlier TTL can shorten the sweeper's current sleep.
func (s *Store) WaitForWake(timeout time.Duration) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.wake:
	case <-t.C:
	}
}

// EarliestDeadline returns the interval until the time table's nearest
// expiry, capped at ceiling, for the sweeper to pass to WaitForWake.
func (s *Store) EarliestDeadline(ceiling time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.timeTable.earliest()
	if !ok {
		return ceiling
	}
	d := time.Until(at)
	if d <= 0 {
		return 0
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// Stop wakes anything blocked in WaitForWake, used on shutdown so the
// sweeper's goroutine observes the stop signal promptly.
func (s *Store) Stop() {
	s.signal()
}
