package conn

import (
	"sync"

	"github.com/google/uuid"
)

// Consumer is a context that receives notifications from a connection:
// a metadata view, a query editor, anything rendering results. A
// consumer that reports Alive() == false is pruned lazily on the next
// visit rather than eagerly unregistered.
type Consumer interface {
	Alive() bool
}

// Token identifies one consumer registration.
type Token = uuid.UUID

// Registry tracks the live consumer contexts of one connection.
type Registry struct {
	mu        sync.Mutex
	consumers map[Token]Consumer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{consumers: make(map[Token]Consumer)}
}

// Register adds a consumer and returns its token.
func (r *Registry) Register(c Consumer) Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := uuid.New()
	r.consumers[t] = c
	return t
}

// Unregister removes a registration. Unknown tokens are ignored.
func (r *Registry) Unregister(t Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.consumers, t)
}

// Visit calls fn for every live consumer, pruning dead ones as it
// goes.
func (r *Registry) Visit(fn func(Consumer)) {
	r.mu.Lock()
	live := make([]Consumer, 0, len(r.consumers))
	for t, c := range r.consumers {
		if !c.Alive() {
			delete(r.consumers, t)
			continue
		}
		live = append(live, c)
	}
	r.mu.Unlock()

	for _, c := range live {
		fn(c)
	}
}

// Len returns the number of registrations, counting consumers not yet
// pruned.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.consumers)
}

// Clear drops every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumers = make(map[Token]Consumer)
}
