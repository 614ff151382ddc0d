// Package session allocates the per-browsing-session correlation id.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/platinummonkey/sitepulse/pkg/consent"
)

// StorageKey is the session-scoped key holding the id
const StorageKey = "analytics_session_id"

// Allocator hands out one id per browsing session. The id lives in the session
// storage area, so it is created at most once per session and disappears when
// that area is cleared. Allocation does not depend on consent.
type Allocator struct {
	storage consent.Storage
	newID   func() string
	mu      sync.Mutex
}

// NewAllocator creates an allocator backed by storage
func NewAllocator(storage consent.Storage) *Allocator {
	return &Allocator{
		storage: storage,
		newID:   uuid.NewString,
	}
}

// ID returns the session id, creating it on first use
func (a *Allocator) ID() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id, ok := a.storage.Get(consent.ScopeSession, StorageKey); ok && id != "" {
		return id
	}
	id := a.newID()
	a.storage.Set(consent.ScopeSession, StorageKey, id)
	return id
}

// Current returns the id without creating one
func (a *Allocator) Current() (string, bool) {
	id, ok := a.storage.Get(consent.ScopeSession, StorageKey)
	return id, ok && id != ""
}
