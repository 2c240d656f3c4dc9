package transport

import (
	"context"
	"sync"
)

// Handler is anything registered under an endpoint name that can serve
// a unary request: the HTTP router implements it in production, and
// tests implement it directly.
type Handler interface {
	Handle(ctx context.Context, method, path string, body []byte) ([]byte, error)
}

// MemoryTransport routes Send/SendAsync/Notify calls to in-process
// Handlers keyed by endpoint name, so multi-node election and store
// tests can run many nodes in one process without binding sockets.
// Grounded on ShubhamNegi4-Distributed-Key-Value-Cache/raft/MemoryTransport.go.
type MemoryTransport struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	observer map[string]Handler
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		handlers: make(map[string]Handler),
		observer: make(map[string]Handler),
	}
}

func (t *MemoryTransport) Register(endpoint string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[endpoint] = h
}

// RegisterObserver wires a callback URI (as used by Notify) to a
// handler, for observer-fanout tests.
func (t *MemoryTransport) RegisterObserver(uri string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observer[uri] = h
}

func (t *MemoryTransport) Send(ctx context.Context, endpoint, method, path string, body []byte) Result {
	t.mu.RLock()
	h, ok := t.handlers[endpoint]
	t.mu.RUnlock()

	if !ok {
		return Result{Status: StatusUnreachable}
	}

	resp, err := h.Handle(ctx, method, path, body)
	if err != nil {
		return Result{Status: StatusError, Err: err}
	}
	return Result{Body: resp, Status: StatusOK}
}

func (t *MemoryTransport) SendAsync(endpoint, method, path string, body []byte) {
	go func() {
		defer recoverLog()
		t.Send(context.Background(), endpoint, method, path, body)
	}()
}

func (t *MemoryTransport) Notify(uri string, body []byte) {
	t.mu.RLock()
	h, ok := t.observer[uri]
	t.mu.RUnlock()
	if !ok {
		return
	}
	go func() {
		defer recoverLog()
		_, _ = h.Handle(context.Background(), "POST", uri, body)
	}()
}
