package lsp

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry tracks at most one client per workspace root. An editor
// typically holds one Registry and looks up the client for whatever
// root the current buffer belongs to.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Client
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Add registers a client for a workspace root. Returns ErrConnExists if
// the root already has one; the caller decides whether to reuse or
// replace it.
func (r *Registry) Add(root string, c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[root]; ok {
		return ErrConnExists
	}
	r.clients[root] = c
	r.logger.Debug("registered client", zap.String("root", root), zap.String("server", c.Name()))
	return nil
}

// Get returns the client for a workspace root.
func (r *Registry) Get(root string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[root]
	return c, ok
}

// Remove drops and returns the client for a workspace root, or nil if
// none is registered. The client is not shut down.
func (r *Registry) Remove(root string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.clients[root]
	delete(r.clients, root)
	return c
}

// Roots returns the registered workspace roots, sorted.
func (r *Registry) Roots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	roots := make([]string, 0, len(r.clients))
	for root := range r.clients {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// ShutdownAll shuts down every registered client concurrently and waits
// for all of them, then empties the registry. Each client gets the same
// per-server timeout.
func (r *Registry) ShutdownAll(timeout time.Duration) {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			c.Shutdown(timeout)
		}(c)
	}
	wg.Wait()
}
