package checkout

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Sessions holds the drafts of open checkout wizards. Drafts live in memory only: a
// restart or an ended session discards them.
type Sessions struct {
	mu     sync.Mutex
	drafts map[string]*Draft
	now    func() time.Time
}

func NewSessions() *Sessions {
	return &Sessions{drafts: map[string]*Draft{}, now: time.Now}
}

// Begin opens a wizard for the shopper and returns its empty draft.
func (s *Sessions) Begin(cred auth.Credential) (*Draft, error) {
	if cred.Empty() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "checkout requires sign in")
	}
	draft := newDraft(uuid.NewString(), cred.Scope(), s.now())
	s.mu.Lock()
	s.drafts[draft.id] = draft
	s.mu.Unlock()
	return draft, nil
}

// Get returns the shopper's draft. Drafts of other shoppers are reported as missing.
func (s *Sessions) Get(id string, cred auth.Credential) (*Draft, error) {
	s.mu.Lock()
	draft, ok := s.drafts[id]
	s.mu.Unlock()
	if !ok || cred.Empty() || draft.owner != cred.Scope() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	draft.touch(s.now())
	return draft, nil
}

// End discards the draft. Ending an unknown session is a no-op.
func (s *Sessions) End(id string, cred auth.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if draft, ok := s.drafts[id]; ok && draft.owner == cred.Scope() {
		delete(s.drafts, id)
	}
}

// Sweep discards drafts untouched for idle and returns how many were dropped.
func (s *Sessions) Sweep(idle time.Duration) int {
	cutoff := s.now().Add(-idle)
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id, draft := range s.drafts {
		if draft.idleSince().After(cutoff) {
			continue
		}
		delete(s.drafts, id)
		dropped++
	}
	return dropped
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}
