package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hpnssflw/voicekeeper/internal/storage"
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	SaveStyleProfile(userID, profileJSON string) error
	GetStyleProfile(userID string) (string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	profile StyleProfile
	found   bool
	at      time.Time
}

// Manager provides cached, per-user access to stored style profiles.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// Get returns the user's stored profile. found is false when the user has no
// profile yet, in which case the default profile is returned.
func (m *Manager) Get(userID string) (p StyleProfile, found bool, err error) {
	m.mu.RLock()
	if e, ok := m.cache[userID]; ok && m.fresh(e) {
		m.mu.RUnlock()
		return e.profile.Clone(), e.found, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.cache[userID]; ok && m.fresh(e) {
		return e.profile.Clone(), e.found, nil
	}

	e, err := m.load(userID)
	if err != nil {
		return StyleProfile{}, false, err
	}
	m.cache[userID] = e
	return e.profile.Clone(), e.found, nil
}

// Replace stores p as the user's profile, superseding any previous one.
func (m *Manager) Replace(userID string, p StyleProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(userID, p.Normalize())
}

// SetSatisfaction records feedback on the last generation for the user's profile.
func (m *Manager) SetSatisfaction(userID string, s Satisfaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.load(userID)
	if err != nil {
		return err
	}
	if !e.found {
		return fmt.Errorf("setting satisfaction for %q: %w", userID, storage.ErrNotFound)
	}
	p := e.profile
	p.Satisfaction = s
	return m.save(userID, p)
}

func (m *Manager) fresh(e cacheEntry) bool {
	return m.clock.Now().Before(e.at.Add(m.ttl))
}

// load reads and parses a stored profile. Callers must hold mu.
func (m *Manager) load(userID string) (cacheEntry, error) {
	raw, err := m.store.GetStyleProfile(userID)
	if errors.Is(err, storage.ErrNotFound) {
		return cacheEntry{profile: Default(), at: m.clock.Now()}, nil
	}
	if err != nil {
		return cacheEntry{}, fmt.Errorf("loading style profile for %q: %w", userID, err)
	}

	p, err := Parse([]byte(raw))
	if err != nil {
		slog.Warn("malformed stored style profile, using defaults", "user_id", userID, "error", err)
		p = Default()
	}
	return cacheEntry{profile: p, found: true, at: m.clock.Now()}, nil
}

// save persists p and invalidates the cache entry. Callers must hold mu.
func (m *Manager) save(userID string, p StyleProfile) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshalling style profile: %w", err)
	}
	if err := m.store.SaveStyleProfile(userID, string(b)); err != nil {
		return fmt.Errorf("saving style profile for %q: %w", userID, err)
	}
	delete(m.cache, userID)
	return nil
}
