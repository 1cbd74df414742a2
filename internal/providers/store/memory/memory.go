// Package memory implements store.Store in-process, for local development
// and single-instance deployments that don't need Postgres.
package memory

import (
	"context"
	"sync"

	"github.com/agentplexus/voiceengine/errs"
	"github.com/agentplexus/voiceengine/store"
)

var _ store.Store = (*Store)(nil)

// Store is a sync.Mutex-guarded map-backed store.Store.
type Store struct {
	mu       sync.Mutex
	calls    map[string]store.Call
	messages map[string][]store.Message
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		calls:    make(map[string]store.Call),
		messages: make(map[string][]store.Message),
	}
}

func (s *Store) UpsertCall(ctx context.Context, call store.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[call.ID] = call
	return nil
}

func (s *Store) GetCall(ctx context.Context, callID string) (*store.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[callID]
	if !ok {
		return nil, &errs.NotFoundError{Msg: "no call " + callID}
	}
	return &c, nil
}

func (s *Store) GetCallByCarrierID(ctx context.Context, carrierCallID string) (*store.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c.CarrierMeta["carrierCallId"] == carrierCallID {
			call := c
			return &call, nil
		}
	}
	return nil, &errs.NotFoundError{Msg: "no call with carrier id " + carrierCallID}
}

func (s *Store) AppendMessage(ctx context.Context, msg store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.CallID] = append(s.messages[msg.CallID], msg)
	return nil
}

func (s *Store) ListMessages(ctx context.Context, callID string) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Message, len(s.messages[callID]))
	copy(out, s.messages[callID])
	return out, nil
}

func (s *Store) Close() error { return nil }
