package lsp

import (
	"sync"

	"go.uber.org/zap"
)

// pendingTable maps outstanding request ids to their one-shot response
// callbacks. An entry is removed exactly once: popped by the dispatcher
// when the matching response arrives, or bulk-cleared on failure or
// shutdown. Cleared callbacks are never invoked; callers needing a
// guaranteed completion must run their own timeout.
type pendingTable struct {
	mu       sync.Mutex
	requests map[string]ResponseHandler
	logger   *zap.Logger
}

func newPendingTable(logger *zap.Logger) *pendingTable {
	return &pendingTable{
		requests: make(map[string]ResponseHandler),
		logger:   logger,
	}
}

// register records a callback for a request id.
func (p *pendingTable) register(id RequestID, cb ResponseHandler) {
	p.mu.Lock()
	p.requests[id.String()] = cb
	p.mu.Unlock()
}

// resolve atomically pops the callback for id, or nil if none exists
// (e.g. a response to a request whose callback was already cleared).
func (p *pendingTable) resolve(id RequestID) ResponseHandler {
	p.mu.Lock()
	defer p.mu.Unlock()

	cb, ok := p.requests[id.String()]
	if !ok {
		return nil
	}
	delete(p.requests, id.String())
	return cb
}

// clear discards every pending callback without invoking it. Leaving
// the entries in place would leak memory and let callers wait forever
// on responses that will never come.
func (p *pendingTable) clear() {
	p.mu.Lock()
	n := len(p.requests)
	if n > 0 {
		p.requests = make(map[string]ResponseHandler)
	}
	p.mu.Unlock()

	if n > 0 {
		p.logger.Warn("clearing pending request callbacks", zap.Int("count", n))
	}
}

// size reports the number of outstanding requests.
func (p *pendingTable) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}
