package constituent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehz500/arangodb/internal/transport"
)

// memoryPersister is an in-memory stand-in for the Agent, adequate for
// driving the election state machine in tests without bbolt.
type memoryPersister struct {
	mu                 sync.Mutex
	term               uint64
	votedFor           string
	hasRecord          bool
	leadershipAcquired int
}

func (p *memoryPersister) LoadLatest() (uint64, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term, p.votedFor, p.hasRecord
}

func (p *memoryPersister) SaveVote(term uint64, votedFor string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.term, p.votedFor, p.hasRecord = term, votedFor, true
	return nil
}

func (p *memoryPersister) OnLeadershipAcquired() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leadershipAcquired++
}

// nodeHandler adapts a Constituent's requestVote/notifyAll endpoints to
// transport.Handler, the same shape api.Router exposes in production,
// kept local here to avoid an import cycle with the api package's own
// tests.
type nodeHandler struct {
	node *Constituent
}

func (h *nodeHandler) Handle(_ context.Context, method, path string, body []byte) ([]byte, error) {
	u, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	q := u.Query()

	switch {
	case u.Path == "/_api/agency_priv/requestVote" && method == http.MethodGet:
		term, _ := strconv.ParseUint(q.Get("term"), 10, 64)
		resp := h.node.HandleRequestVote(VoteRequest{
			Term:        term,
			CandidateId: q.Get("candidateId"),
		})
		return json.Marshal(resp)
	case u.Path == "/_api/agency_priv/notifyAll" && method == http.MethodPost:
		var req NotifyAllRequest
		if len(body) > 0 {
			_ = json.Unmarshal(body, &req)
		}
		term, _ := strconv.ParseUint(q.Get("term"), 10, 64)
		h.node.HandleNotifyAll(term, q.Get("agencyId"), req)
		return []byte("{}"), nil
	default:
		return nil, fmt.Errorf("no route for %s %s", method, path)
	}
}

func buildCluster(t *testing.T, n int) ([]*Constituent, *transport.MemoryTransport) {
	t.Helper()
	mt := transport.NewMemoryTransport()

	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("node%d", i)
	}

	nodes := make([]*Constituent, n)
	for i, id := range ids {
		var peers []Peer
		for j, other := range ids {
			if j == i {
				continue
			}
			peers = append(peers, Peer{Id: other, Endpoint: other})
		}
		cfg := Config{
			Id:      id,
			Peers:   peers,
			MinPing: 20 * time.Millisecond,
			MaxPing: 40 * time.Millisecond,
		}
		nodes[i] = New(cfg, mt, &memoryPersister{})
	}
	for i, id := range ids {
		mt.Register(id, &nodeHandler{node: nodes[i]})
	}
	return nodes, mt
}

func waitForLeader(t *testing.T, nodes []*Constituent, timeout time.Duration) *Constituent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		for _, n := range nodes {
			if n.Role() == Leader {
				return n
			}
		}
		select {
		case <-deadline:
			t.Fatal("no leader elected within timeout")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestElectionConvergesToSingleLeader(t *testing.T) {
	nodes, _ := buildCluster(t, 3)
	for _, n := range nodes {
		require.NoError(t, n.Start())
	}
	defer func() {
		for _, n := range nodes {
			n.Stop()
		}
	}()

	leader := waitForLeader(t, nodes, 2*time.Second)

	time.Sleep(100 * time.Millisecond)

	leaders := 0
	for _, n := range nodes {
		if n.Role() == Leader {
			leaders++
		}
	}
	assert.Equal(t, 1, leaders)
	assert.Equal(t, leader.cfg.Id, leader.LeaderID())
}

func TestSingleProcessClusterIsPermanentLeader(t *testing.T) {
	mt := transport.NewMemoryTransport()
	cfg := Config{Id: "solo", MinPing: 10 * time.Millisecond, MaxPing: 20 * time.Millisecond}
	n := New(cfg, mt, &memoryPersister{})
	require.NoError(t, n.Start())
	defer n.Stop()

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, Leader, n.Role())
	assert.Equal(t, "solo", n.LeaderID())
}

func TestHandleRequestVoteGrantsHigherTerm(t *testing.T) {
	mt := transport.NewMemoryTransport()
	p := &memoryPersister{}
	cfg := Config{Id: "a", Peers: []Peer{{Id: "b", Endpoint: "b"}}, MinPing: 50 * time.Millisecond, MaxPing: 80 * time.Millisecond}
	n := New(cfg, mt, p)
	require.NoError(t, n.Start())
	defer n.Stop()

	resp := n.HandleRequestVote(VoteRequest{Term: 5, CandidateId: "b"})
	assert.True(t, resp.VoteGranted)
	assert.Equal(t, uint64(5), resp.Term)
	assert.Equal(t, uint64(5), n.CurrentTerm())
	assert.Equal(t, "b", n.LeaderID())

	_, votedFor, ok := p.LoadLatest()
	assert.True(t, ok)
	assert.Equal(t, "b", votedFor)
}

func TestHandleRequestVoteRejectsLowerTerm(t *testing.T) {
	mt := transport.NewMemoryTransport()
	p := &memoryPersister{}
	cfg := Config{Id: "a", MinPing: 50 * time.Millisecond, MaxPing: 80 * time.Millisecond}
	n := New(cfg, mt, p)
	require.NoError(t, n.Start())
	defer n.Stop()

	n.HandleRequestVote(VoteRequest{Term: 5, CandidateId: "b"})

	resp := n.HandleRequestVote(VoteRequest{Term: 3, CandidateId: "c"})
	assert.False(t, resp.VoteGranted)
	assert.Equal(t, uint64(5), resp.Term)
}

func TestHandleRequestVoteIdempotentReaffirmation(t *testing.T) {
	mt := transport.NewMemoryTransport()
	p := &memoryPersister{}
	cfg := Config{Id: "a", MinPing: 50 * time.Millisecond, MaxPing: 80 * time.Millisecond}
	n := New(cfg, mt, p)
	require.NoError(t, n.Start())
	defer n.Stop()

	first := n.HandleRequestVote(VoteRequest{Term: 5, CandidateId: "b"})
	require.True(t, first.VoteGranted)

	second := n.HandleRequestVote(VoteRequest{Term: 5, CandidateId: "b"})
	assert.True(t, second.VoteGranted, "same-term request from the recognised leader re-affirms rather than rejects")
}
