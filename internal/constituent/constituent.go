// Package constituent implements the Role Engine of spec.md §4.2: the
// Follower/Candidate/Leader election state machine that the teacher's
// node_fsm.go/follower.go/candidate.go/leader.go sketch for a single
// static leader, generalised here to full N-peer leader election with
// randomized timers, term persistence, and majority vote collection.
package constituent

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ehz500/arangodb/internal/common"
	"github.com/ehz500/arangodb/internal/transport"
	"github.com/ehz500/arangodb/internal/util"
	"github.com/ehz500/arangodb/internal/util/fsm"
)

// Constituent is this node's Role Engine: one background loop cycling
// through Follower/Candidate/Leader, guarded by its own mutex — the
// "role-engine mutex (distinct from the store lock)" spec.md §5
// requires for term/role/votes/cast/voted_for/leader_id.
type Constituent struct {
	cfg       Config
	transport transport.Transport
	persister Persister
	events    *common.EventListenerDispatcher
	log       *log.Entry

	svc *common.SyncService

	mu       sync.Mutex
	fsm      *fsm.FSM
	role     Role
	term     uint64
	votedFor string
	leaderID string
	votes    map[string]bool
	cast     bool

	rnd    *rand.Rand
	wake   chan struct{}
	stopCh chan struct{}
}

func New(cfg Config, t transport.Transport, persister Persister) *Constituent {
	c := &Constituent{
		cfg:       cfg,
		transport: t,
		persister: persister,
		events:    common.NewEventListenerDispatcher(),
		log:       log.WithFields(log.Fields{"component": "constituent", "id": cfg.Id}),
		fsm:       newRoleFSM(),
		role:      Follower,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	c.svc = common.NewSyncService(c.start, c.run, c.stop)
	return c
}

func (c *Constituent) Start() error { return c.svc.Start() }
func (c *Constituent) Stop() error  { return c.svc.Stop() }

func (c *Constituent) Subscribe(ch chan<- common.Event) { c.events.Subscribe(ch) }

func (c *Constituent) Role() Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *Constituent) CurrentTerm() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.term
}

func (c *Constituent) LeaderID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leaderID
}

func (c *Constituent) start() error {
	if term, votedFor, ok := c.persister.LoadLatest(); ok {
		c.mu.Lock()
		c.term = term
		c.votedFor = votedFor
		c.mu.Unlock()
	}
	return nil
}

func (c *Constituent) stop() error {
	close(c.stopCh)
	c.signalWake()
	return nil
}

// run is the Role Engine's single background loop (spec.md §5: "two
// long-lived worker threads per process — the Role Engine loop and the
// Store's TTL sweeper").
func (c *Constituent) run() {
	if c.cfg.Size() == 1 {
		c.becomePermanentLeader()
		return
	}

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		switch c.Role() {
		case Follower:
			c.runFollower()
		case Candidate:
			c.runCandidate()
		case Leader:
			c.runLeader()
		}
	}
}

// becomePermanentLeader implements spec.md §3 invariant 7: a
// single-process cluster skips the state machine entirely.
func (c *Constituent) becomePermanentLeader() {
	c.mu.Lock()
	c.role = Leader
	c.leaderID = c.cfg.Id
	term := c.term
	c.mu.Unlock()

	c.persister.OnLeadershipAcquired()
	c.events.Emit(common.Event{Type: common.RoleChanged, Term: term, Data: Leader})

	<-c.stopCh
}

func (c *Constituent) runFollower() {
	c.mu.Lock()
	c.cast = false
	c.mu.Unlock()

	c.sleepInterruptible(c.randomDuration(c.cfg.MinPing, c.cfg.MaxPing))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cast {
		return
	}
	c.transitionLocked(electionTimeoutEvent{term: c.term})
}

func (c *Constituent) runCandidate() {
	c.mu.Lock()
	c.term++
	term := c.term
	c.votedFor = c.cfg.Id
	c.votes = map[string]bool{c.cfg.Id: true}
	c.cast = true
	c.persistLocked(term, c.cfg.Id)
	c.mu.Unlock()

	c.log.WithField("term", term).Info("constituent: became candidate")

	promises := make([]*util.Promise, 0, len(c.cfg.Peers))
	for _, peer := range c.cfg.Peers {
		peer := peer
		promises = append(promises, util.NewPromise(func() (interface{}, error) {
			return c.requestVote(peer, term)
		}))
	}

	lo := time.Duration(float64(c.cfg.MinPing) * 0.5)
	hi := time.Duration(float64(c.cfg.MinPing) * 0.8)
	c.sleepInterruptible(c.randomDuration(lo, hi))

	granted := 1 // self
	var higherTerm uint64
	for _, p := range promises {
		res, err, ok := p.TryGet()
		if !ok || err != nil {
			continue // unreachable/timeout/no-answer counts as a negative vote (spec.md §7)
		}
		vr := res.(*VoteResponse)
		if vr.Term > term {
			if vr.Term > higherTerm {
				higherTerm = vr.Term
			}
			continue
		}
		if vr.VoteGranted {
			granted++
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.term != term || c.role != Candidate {
		// An incoming requestVote already moved us off this term/role
		// while we were collecting responses; nothing left to decide.
		return
	}

	if higherTerm > term {
		c.term = higherTerm
		c.persistLocked(higherTerm, "")
		c.transitionLocked(higherTermEvent{term: higherTerm})
		return
	}

	if granted > c.cfg.Size()/2 {
		c.transitionLocked(majorityGrantedEvent{term: term})
	} else {
		c.transitionLocked(splitVoteEvent{term: term})
	}
}

func (c *Constituent) runLeader() {
	c.mu.Lock()
	c.leaderID = c.cfg.Id
	term := c.term
	c.mu.Unlock()

	c.persister.OnLeadershipAcquired()

	heartbeat := time.Duration(float64(c.cfg.MinPing) * 0.5)
	if heartbeat <= 0 {
		heartbeat = 10 * time.Millisecond
	}

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}
		if c.Role() != Leader {
			return
		}

		c.broadcastHeartbeat(term)
		c.sleepInterruptible(heartbeat)
	}
}

// broadcastHeartbeat re-sends requestVote to every peer at the
// Leader's own term. Spec.md §4.2's vote-grant rule treats a same-term
// request from the recognised leader as an "idempotent re-affirmation"
// — this is the spec's own substitute for a dedicated heartbeat RPC, so
// no new endpoint is introduced for it.
func (c *Constituent) broadcastHeartbeat(term uint64) {
	for _, peer := range c.cfg.Peers {
		peer := peer
		go func() {
			defer common.RecoverLog()
			res, err := c.requestVote(peer, term)
			if err != nil || res.Term <= term {
				return
			}

			c.mu.Lock()
			defer c.mu.Unlock()
			if res.Term > c.term {
				c.term = res.Term
				c.persistLocked(res.Term, "")
			}
			if c.role == Leader {
				c.transitionLocked(higherTermEvent{term: res.Term})
			}
		}()
	}
}

func (c *Constituent) requestVote(peer Peer, term uint64) (*VoteResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.MinPing)
	defer cancel()

	path := fmt.Sprintf("/_api/agency_priv/requestVote?term=%d&candidateId=%s&prevLogIndex=0&prevLogTerm=0",
		term, url.QueryEscape(c.cfg.Id))

	res := c.transport.Send(ctx, peer.Endpoint, http.MethodGet, path, nil)
	if res.Status != transport.StatusOK {
		return nil, fmt.Errorf("constituent: requestVote to %s: status %d", peer.Id, res.Status)
	}

	var vr VoteResponse
	if err := json.Unmarshal(res.Body, &vr); err != nil {
		return nil, err
	}
	return &vr, nil
}

// HandleRequestVote answers an incoming requestVote RPC (spec.md §4.2
// "Vote handling").
func (c *Constituent) HandleRequestVote(req VoteRequest) VoteResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	grant := req.Term > c.term || (req.Term == c.term && c.leaderID == req.CandidateId)
	if !grant {
		return VoteResponse{Term: c.term, VoteGranted: false}
	}

	c.term = req.Term
	c.votedFor = req.CandidateId
	c.leaderID = req.CandidateId
	c.cast = true
	c.persistLocked(c.term, c.votedFor)

	if c.role == Candidate || c.role == Leader {
		c.transitionLocked(higherTermEvent{term: c.term})
	}

	c.signalWake()

	return VoteResponse{Term: c.term, VoteGranted: true}
}

// HandleNotifyAll records the gossiped peer endpoints of spec.md §6.
// It does not participate in role transitions — requestVote doubles
// as the heartbeat signal (see broadcastHeartbeat).
func (c *Constituent) HandleNotifyAll(term uint64, agencyID string, req NotifyAllRequest) {
	c.log.WithFields(log.Fields{"term": term, "agencyId": agencyID, "endpoints": req.Endpoints}).
		Debug("constituent: notifyAll received")
}

func (c *Constituent) persistLocked(term uint64, votedFor string) {
	if err := c.persister.SaveVote(term, votedFor); err != nil {
		c.log.WithError(err).Warn("constituent: failed to persist term/vote")
	}
}

// transitionLocked runs the guard-rail FSM for e; caller must hold c.mu.
// An illegal transition is logged and suppressed rather than panicking,
// since this runs on the commit path of an incoming RPC as well as the
// background loop.
func (c *Constituent) transitionLocked(e fsm.Event) {
	next, err := c.fsm.CheckedTransition(e)
	if err != nil {
		c.log.WithError(err).Debug("constituent: illegal role transition suppressed")
		return
	}
	newRole := Role(next)
	if newRole == c.role {
		return
	}
	c.role = newRole
	if newRole != Candidate {
		c.votes = nil
	}
	c.events.Emit(common.Event{Type: common.RoleChanged, Term: c.term, Data: newRole})
}

func (c *Constituent) signalWake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// sleepInterruptible blocks for d, or until signalWake or shutdown,
// whichever comes first (spec.md §5: "Role Engine sleeps on a timed
// wait that is interrupted by cv.signal() when a vote is granted").
func (c *Constituent) sleepInterruptible(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-c.wake:
	case <-c.stopCh:
	}
}

func (c *Constituent) randomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(c.rnd.Int63n(int64(max-min)))
}
