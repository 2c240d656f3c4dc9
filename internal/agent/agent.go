// Package agent implements the Replicator external collaborator from
// spec.md §2: durable (term, voted_for) persistence plus the sole
// write path ("write(envelope)"/"waitFor(index)") a leader uses to get
// a transaction batch committed. It is grounded on
// iScript-etcd-cr/mvcc/backend's use of go.etcd.io/bbolt as the
// durable embedded store underneath a Raft-style log — the closest
// thing in the retrieved pack to "durably writes one record per
// (term, voted_for) change" (spec.md §6).
package agent

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/ehz500/arangodb/internal/store"
)

var (
	termsBucket = []byte("terms")
	logBucket   = []byte("log")
)

// termRecord is the durable (term, voted_for) record spec.md §6
// describes, keyed by term left-padded to width 20 with zeros.
type termRecord struct {
	Term     uint64 `json:"term"`
	VotedFor string `json:"votedFor"`
}

// Agent is the concrete Replicator: a bbolt-backed durable log plus
// term/vote table, sitting between the Constituent and the Store.
type Agent struct {
	db    *bolt.DB
	store *store.Store
	log   *log.Entry

	mu        sync.Mutex
	nextIndex uint64
	waiters   map[uint64][]chan struct{}
}

// Open opens (creating if absent) the bbolt file at path and wires it
// to s as the write path for committed transactions.
func Open(path string, s *store.Store) (*Agent, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("agent: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(termsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(logBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("agent: init buckets: %w", err)
	}

	a := &Agent{
		db:      db,
		store:   s,
		log:     log.WithField("component", "agent"),
		waiters: make(map[uint64][]chan struct{}),
	}

	lastIdx, err := a.lastLogIndex()
	if err != nil {
		db.Close()
		return nil, err
	}
	a.nextIndex = lastIdx + 1

	return a, nil
}

func (a *Agent) Close() error { return a.db.Close() }

func termKey(term uint64) []byte {
	return []byte(fmt.Sprintf("%020d", term))
}

func indexKey(index uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, index)
	return b
}

// LoadLatest implements constituent.Persister: it loads the
// highest-keyed (term, voted_for) record, per spec.md §6 "On startup
// the Role Engine loads the highest-keyed record and resumes at that
// term/vote."
func (a *Agent) LoadLatest() (term uint64, votedFor string, ok bool) {
	err := a.db.View(func(tx *bolt.Tx) error {
		k, v := tx.Bucket(termsBucket).Cursor().Last()
		if k == nil {
			return nil
		}
		var rec termRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		term, votedFor, ok = rec.Term, rec.VotedFor, true
		return nil
	})
	if err != nil {
		a.log.WithError(err).Warn("agent: failed to load latest term record")
		return 0, "", false
	}
	return term, votedFor, ok
}

// SaveVote implements constituent.Persister.
func (a *Agent) SaveVote(term uint64, votedFor string) error {
	body, err := json.Marshal(termRecord{Term: term, VotedFor: votedFor})
	if err != nil {
		return err
	}
	return a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(termsBucket).Put(termKey(term), body)
	})
}

// OnLeadershipAcquired implements constituent.Persister: rebuilds the
// Agent's derived append cursor from the durable log, per spec.md
// §4.2's "invoke the Replicator's leadership initialisation hook
// (rebuild in-memory derived state)".
func (a *Agent) OnLeadershipAcquired() {
	idx, err := a.lastLogIndex()
	if err != nil {
		a.log.WithError(err).Error("agent: failed to rebuild log index on leadership acquisition")
		return
	}

	a.mu.Lock()
	a.nextIndex = idx + 1
	a.mu.Unlock()

	a.log.WithField("nextIndex", idx+1).Info("agent: rebuilt derived state on leadership acquisition")
}

func (a *Agent) lastLogIndex() (uint64, error) {
	var idx uint64
	err := a.db.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket(logBucket).Cursor().Last()
		if k != nil {
			idx = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	return idx, err
}

// LastLog implements the Replicator's lastLog() contract (spec.md §2).
// This rewrite carries no per-entry term (on-disk log format beyond
// role transitions is an explicit Non-goal, spec.md §1), so it always
// reports term 0 alongside the last written index.
func (a *Agent) LastLog() (index uint64, term uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextIndex - 1, 0
}

// Submit implements store.Submitter: the sole path by which a leader
// (or the TTL sweeper) gets a transaction batch committed. It durably
// appends the envelope via write, applies it to the Store, then blocks
// on waitFor(index) before returning the per-transaction result vector.
func (a *Agent) Submit(txns []store.Transaction) []bool {
	index, err := a.write(txns)
	if err != nil {
		a.log.WithError(err).Error("agent: failed to persist transaction envelope")
		return make([]bool, len(txns))
	}

	results := a.store.Apply(txns)
	a.waitFor(index)
	return results
}

func (a *Agent) write(txns []store.Transaction) (uint64, error) {
	body, err := json.Marshal(txns)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	index := a.nextIndex
	a.nextIndex++
	a.mu.Unlock()

	if err := a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(logBucket).Put(indexKey(index), body)
	}); err != nil {
		return 0, err
	}

	a.mu.Lock()
	for _, ch := range a.waiters[index] {
		close(ch)
	}
	delete(a.waiters, index)
	a.mu.Unlock()

	return index, nil
}

// waitFor implements the Replicator's waitFor(index) contract: it
// blocks until index has been durably written. write is synchronous in
// this single-node Agent, so any already-written index returns
// immediately; the wait channel only matters for a caller that races
// ahead of its own write call.
func (a *Agent) waitFor(index uint64) {
	a.mu.Lock()
	if index < a.nextIndex {
		a.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	a.waiters[index] = append(a.waiters[index], ch)
	a.mu.Unlock()
	<-ch
}
