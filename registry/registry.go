// Package registry implements the process-local Session Registry: a
// concurrent-safe callId→Session map, plus the lifecycle operations (info,
// end, shutdown-all) exposed over HTTP by cmd/engine.
package registry

import (
	"context"
	"sync"

	"github.com/agentplexus/voiceengine/errs"
	"github.com/agentplexus/voiceengine/session"
)

// Registry is the capability object Design Notes calls for:
// instantiated once at startup and injected into request handlers, rather
// than kept as package-level global mutable state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*session.Session)}
}

// Register adds a session under its call id. Per invariant,
// exactly one Session may exist per call id at a time.
func (r *Registry) Register(s *session.Session, callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[callID] = s
}

// Deregister removes a session. Safe to call more than once; it is the
// last step of a session's teardown.
func (r *Registry) Deregister(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callID)
}

// Lookup returns the live session for callID, if any.
func (r *Registry) Lookup(callID string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[callID]
	return s, ok
}

// Iterate calls fn for every currently registered session. fn must not
// call back into Register/Deregister/Iterate.
func (r *Registry) Iterate(fn func(callID string, s *session.Session)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, s := range r.sessions {
		fn(id, s)
	}
}

// Info returns the lifecycle snapshot for callID (GET session info).
func (r *Registry) Info(callID string) (session.Snapshot, error) {
	s, ok := r.Lookup(callID)
	if !ok {
		return session.Snapshot{}, &errs.NotFoundError{Msg: "no live session for call " + callID}
	}
	return s.Snapshot(), nil
}

// EndCall invokes end("api-request") on the named session (POST end).
func (r *Registry) EndCall(ctx context.Context, callID string) error {
	s, ok := r.Lookup(callID)
	if !ok {
		return &errs.NotFoundError{Msg: "no live session for call " + callID}
	}
	s.End(ctx, "api-request")
	return nil
}

// Shutdown ends every live session with reason "server-shutdown" (invoked
// from SIGTERM/SIGINT handling) and waits for each to finish tearing down.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.RLock()
	sessions := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *session.Session) {
			defer wg.Done()
			s.End(ctx, "server-shutdown")
			<-s.Done()
		}(s)
	}
	wg.Wait()
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
