package history

import "sync"

// Registry держит по одному журналу на дизайн.
type Registry struct {
	mu       sync.RWMutex
	opts     Options
	managers map[string]*Manager
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:     opts,
		managers: make(map[string]*Manager),
	}
}

func (r *Registry) Get(designID string) (*Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[designID]
	return m, ok
}

// Open возвращает журнал дизайна, создавая его от initial при первом обращении.
func (r *Registry) Open(designID string, initial []byte) *Manager {
	if m, ok := r.Get(designID); ok {
		return m
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[designID]; ok {
		return m
	}
	m := New(initial, r.opts)
	r.managers[designID] = m
	return m
}

func (r *Registry) Drop(designID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.managers, designID)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.managers)
}
