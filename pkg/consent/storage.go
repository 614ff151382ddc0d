package consent

import (
	"sort"
	"strings"
	"sync"
)

// Scope selects one of the browser storage areas
type Scope int

const (
	// ScopePersistent survives browser restarts (localStorage)
	ScopePersistent Scope = iota
	// ScopeSession lives for one browsing session (sessionStorage)
	ScopeSession
	// ScopeCookie is the cookie jar
	ScopeCookie
)

func (s Scope) String() string {
	switch s {
	case ScopePersistent:
		return "persistent"
	case ScopeSession:
		return "session"
	case ScopeCookie:
		return "cookie"
	default:
		return "unknown"
	}
}

// Storage abstracts the key/value storage areas available to the client
type Storage interface {
	Get(scope Scope, key string) (string, bool)
	Set(scope Scope, key, value string)
	Delete(scope Scope, key string)
	Keys(scope Scope) []string
	Clear(scope Scope)
}

// MemoryStorage is an in-process Storage
type MemoryStorage struct {
	mu     sync.RWMutex
	scopes map[Scope]map[string]string
}

// NewMemoryStorage creates an empty storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{scopes: make(map[Scope]map[string]string)}
}

func (m *MemoryStorage) Get(scope Scope, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.scopes[scope][key]
	return v, ok
}

func (m *MemoryStorage) Set(scope Scope, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scopes[scope] == nil {
		m.scopes[scope] = make(map[string]string)
	}
	m.scopes[scope][key] = value
}

func (m *MemoryStorage) Delete(scope Scope, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scopes[scope], key)
}

// Keys returns the keys in scope, sorted
func (m *MemoryStorage) Keys(scope Scope) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.scopes[scope]))
	for k := range m.scopes[scope] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryStorage) Clear(scope Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scopes, scope)
}

// trackingPrefixes identify keys written by the analytics vendor
var trackingPrefixes = []string{"_ga", "_gid", "_gat"}

// IsTrackingKey reports whether key belongs to the analytics vendor
func IsTrackingKey(key string) bool {
	for _, p := range trackingPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// purgeTracking removes vendor keys from the persistent area and the cookie jar.
// It returns the number of keys removed.
func purgeTracking(s Storage) int {
	removed := 0
	for _, scope := range []Scope{ScopePersistent, ScopeCookie} {
		for _, key := range s.Keys(scope) {
			if IsTrackingKey(key) {
				s.Delete(scope, key)
				removed++
			}
		}
	}
	return removed
}
