// Package api implements spec.md §6's HTTP-style endpoint table,
// plus two diagnostic endpoints SPEC_FULL.md adds (state/config dumps),
// grounded on original_source's Store::dumpToBuilder and
// Constituent::run's bootstrap query — arangod's Agency always exposes
// introspection alongside its write/read APIs.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/ehz500/arangodb/internal/agent"
	"github.com/ehz500/arangodb/internal/constituent"
	"github.com/ehz500/arangodb/internal/store"
)

const (
	pathRequestVote = "/_api/agency_priv/requestVote"
	pathNotifyAll   = "/_api/agency_priv/notifyAll"
	pathWrite       = "/_api/agency/write"
	pathRead        = "/_api/agency/read"
	pathState       = "/_api/agency_priv/state"
	pathConfig      = "/_api/agency_priv/config"
)

// Snapshot is the static configuration surfaced by pathConfig.
type Snapshot struct {
	Id      string   `json:"id"`
	Peers   []string `json:"peers"`
	MinPing string   `json:"minPing"`
	MaxPing string   `json:"maxPing"`
}

// Router dispatches every endpoint of spec.md §6 to the Constituent,
// Store, and Agent it is built from.
type Router struct {
	node  *constituent.Constituent
	store *store.Store
	agent *agent.Agent
	cfg   Snapshot
	log   *log.Entry
}

func NewRouter(node *constituent.Constituent, s *store.Store, a *agent.Agent, cfg Snapshot) *Router {
	return &Router{node: node, store: s, agent: a, cfg: cfg, log: log.WithField("component", "api")}
}

// ServeHTTP is the real net/http entrypoint used by cmd/agencyd.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, status, err := r.dispatch(req.Method, req.URL.Path, req.URL.RawQuery, body)
	if err != nil {
		r.log.WithError(err).WithField("path", req.URL.Path).Debug("api: request failed")
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(resp)
}

// Handle adapts the Router to transport.Handler, so tests can drive
// the whole HTTP surface through transport.MemoryTransport without
// binding real sockets.
func (r *Router) Handle(_ context.Context, method, path string, body []byte) ([]byte, error) {
	u, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	resp, status, err := r.dispatch(method, u.Path, u.RawQuery, body)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("api: status %d", status)
	}
	return resp, nil
}

func (r *Router) dispatch(method, path, rawQuery string, body []byte) ([]byte, int, error) {
	switch {
	case path == pathRequestVote && method == http.MethodGet:
		return r.requestVote(rawQuery)
	case path == pathNotifyAll && method == http.MethodPost:
		return r.notifyAll(rawQuery, body)
	case path == pathWrite && method == http.MethodPost:
		return r.write(body)
	case path == pathRead && method == http.MethodPost:
		return r.read(body)
	case path == pathState && method == http.MethodGet:
		return r.state()
	case path == pathConfig && method == http.MethodGet:
		return r.config()
	default:
		return nil, http.StatusNotFound, fmt.Errorf("api: no route for %s %s", method, path)
	}
}

func (r *Router) requestVote(rawQuery string) ([]byte, int, error) {
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}

	term, _ := strconv.ParseUint(q.Get("term"), 10, 64)
	prevLogIndex, _ := strconv.ParseUint(q.Get("prevLogIndex"), 10, 64)
	prevLogTerm, _ := strconv.ParseUint(q.Get("prevLogTerm"), 10, 64)

	resp := r.node.HandleRequestVote(constituent.VoteRequest{
		Term:         term,
		CandidateId:  q.Get("candidateId"),
		PrevLogIndex: prevLogIndex,
		PrevLogTerm:  prevLogTerm,
	})

	out, err := json.Marshal(resp)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return out, http.StatusOK, nil
}

func (r *Router) notifyAll(rawQuery string, body []byte) ([]byte, int, error) {
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	term, _ := strconv.ParseUint(q.Get("term"), 10, 64)

	var req constituent.NotifyAllRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, http.StatusBadRequest, err
		}
	}

	r.node.HandleNotifyAll(term, q.Get("agencyId"), req)
	return []byte("{}"), http.StatusOK, nil
}

// write implements spec.md §6's write API: followers reject so
// clients redirect to the leader (spec.md §1 "followers redirect or
// reject").
func (r *Router) write(body []byte) ([]byte, int, error) {
	if r.node.Role() != constituent.Leader {
		return nil, http.StatusServiceUnavailable, fmt.Errorf("api: not leader, current leader is %q", r.node.LeaderID())
	}

	var txns []store.Transaction
	if err := json.Unmarshal(body, &txns); err != nil {
		return nil, http.StatusBadRequest, err
	}

	results := r.agent.Submit(txns)
	out, err := json.Marshal(results)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return out, http.StatusOK, nil
}

// read implements spec.md §6's read API; any role may answer it
// (spec.md §1 "the Store ... exposes read queries to any role").
func (r *Router) read(body []byte) ([]byte, int, error) {
	var queries [][]string
	if err := json.Unmarshal(body, &queries); err != nil {
		return nil, http.StatusBadRequest, err
	}

	out, err := json.Marshal(r.store.Read(queries))
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return out, http.StatusOK, nil
}

func (r *Router) state() ([]byte, int, error) {
	tree, liveTTLs := r.store.Dump()

	out, err := json.Marshal(map[string]interface{}{
		"role":     r.node.Role().String(),
		"term":     r.node.CurrentTerm(),
		"leaderId": r.node.LeaderID(),
		"tree":     json.RawMessage(tree),
		"liveTTLs": liveTTLs,
	})
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return out, http.StatusOK, nil
}

func (r *Router) config() ([]byte, int, error) {
	out, err := json.Marshal(r.cfg)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}
	return out, http.StatusOK, nil
}
