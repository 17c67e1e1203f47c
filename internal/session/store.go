// Package session persists per-visitor state (profile, token, cart, wishlist) as independent slots
// and rehydrates it when a session opens.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrSlotNotFound is returned by a SlotStore when nothing is stored under a key.
var ErrSlotNotFound = errors.New("session: slot not found")

// Slot names. Each is stored and loaded independently.
const (
	SlotUser     = "user"
	SlotToken    = "token"
	SlotCart     = "cart"
	SlotWishlist = "wishlist"
)

// SlotStore is a keyed blob store. Implementations must be safe for concurrent use.
type SlotStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// SlotKey builds the storage key for one slot of one session, e.g. "storefront:abc:cart".
func SlotKey(namespace, sessionID, slot string) string {
	parts := make([]string, 0, 3)
	if ns := strings.TrimSpace(namespace); ns != "" {
		parts = append(parts, ns)
	}
	parts = append(parts, sessionID, slot)
	return strings.Join(parts, ":")
}

// MemoryStore keeps slots in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string][]byte)}
}

// Get implements SlotStore.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.slots[key]
	if !ok {
		return nil, ErrSlotNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Put implements SlotStore.
func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	m.mu.Lock()
	m.slots[key] = stored
	m.mu.Unlock()
	return nil
}

// Delete implements SlotStore.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.slots, key)
	m.mu.Unlock()
	return nil
}
