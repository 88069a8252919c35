package supervisor

import "sync"

// Registry is the authoritative in-memory map of live sessions. It is the
// single injectable state owner; nothing else holds session handles.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Session)}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s
}

// Remove deletes a session by id. No-op if absent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Get returns the session with the given id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// ByTask returns the session bound to taskID, or nil. Unbound automation
// sessions (empty task id) are never returned here.
func (r *Registry) ByTask(taskID string) *Session {
	if taskID == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byID {
		if s.TaskID == taskID {
			return s
		}
	}
	return nil
}

// ByWorkDir returns an active session running in dir, or nil.
func (r *Registry) ByWorkDir(dir string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byID {
		if s.WorkDir == dir && s.Active() {
			return s
		}
	}
	return nil
}

// List returns a snapshot of all registered sessions.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}
