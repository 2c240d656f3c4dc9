package store

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ehz500/arangodb/internal/common"
)

// DefaultSweepCeiling bounds the sweeper's sleep when the time table is
// empty (spec.md §4.1: "a fixed ceiling (e.g. 100 ms) if none").
const DefaultSweepCeiling = 100 * time.Millisecond

// Submitter is the write path the sweeper submits synthetic delete
// batches through. The sweeper never deletes directly against the
// Store (spec.md §4.1) — it hands its batch to the Replicator so the
// deletion is replicated the same way any client write would be.
type Submitter interface {
	Submit(txns []Transaction) []bool
}

// Sweeper is the Store's background TTL worker: it sleeps on the
// store's wake channel with a deadline equal to the earliest
// time_table key (or DefaultSweepCeiling if none), then turns every
// expired node into a delete transaction submitted through Submitter.
// A delete that the Submitter rejects (for example because the
// envelope could not be persisted) puts the node's time_table entry
// back, so the next sweeper cycle submits the delete again.
type Sweeper struct {
	store   *Store
	submit  Submitter
	ceiling time.Duration
	log     *log.Entry

	svc     *common.SyncService
	stopped chan struct{}
}

func NewSweeper(store *Store, submit Submitter) *Sweeper {
	sw := &Sweeper{
		store:   store,
		submit:  submit,
		ceiling: DefaultSweepCeiling,
		log:     log.WithField("component", "sweeper"),
		stopped: make(chan struct{}),
	}
	sw.svc = common.NewSyncService(sw.start, sw.run, sw.stop)
	return sw
}

func (sw *Sweeper) Start() error { return sw.svc.Start() }
func (sw *Sweeper) Stop() error  { return sw.svc.Stop() }

func (sw *Sweeper) start() error { return nil }

func (sw *Sweeper) stop() error {
	close(sw.stopped)
	sw.store.Stop()
	return nil
}

func (sw *Sweeper) run() {
	for {
		select {
		case <-sw.stopped:
			return
		default:
		}

		deadline := sw.store.EarliestDeadline(sw.ceiling)
		sw.store.WaitForWake(deadline)

		select {
		case <-sw.stopped:
			return
		default:
		}

		sw.sweepOnce()
	}
}

func (sw *Sweeper) sweepOnce() {
	sw.store.mu.Lock()
	expired := sw.store.timeTable.extractExpired(time.Now())
	sw.store.mu.Unlock()

	if len(expired) == 0 {
		return
	}

	txns := make([]Transaction, 0, len(expired))
	nodes := make([]*Node, 0, len(expired))
	for _, n := range expired {
		op, err := json.Marshal(map[string]interface{}{n.URI(): map[string]string{"op": "delete"}})
		if err != nil {
			sw.log.WithError(err).Error("sweeper: failed to marshal delete op")
			continue
		}
		txns = append(txns, Transaction{op})
		nodes = append(nodes, n)
	}

	if len(txns) == 0 {
		return
	}

	results := sw.submit.Submit(txns)
	for i, ok := range results {
		if ok || i >= len(nodes) {
			continue
		}
		sw.log.Warn(fmt.Sprintf("sweeper: expired node delete rejected at index %d", i))
		n := nodes[i]
		sw.store.mu.Lock()
		if n.ttl != nil {
			sw.store.timeTable.removeExact(*n.ttl, n)
			sw.store.timeTable.insert(*n.ttl, n)
		}
		sw.store.mu.Unlock()
	}
}
