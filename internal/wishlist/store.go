// Package wishlist keeps the set of products a visitor liked.
package wishlist

import (
	"strings"

	"github.com/hanko-field/storefront/internal/domain"
)

// Store is a product set keyed by canonical product identity. It is single-writer like cart.Store.
type Store struct {
	items    []domain.WishlistEntry
	onChange func([]domain.WishlistEntry)
}

// Option customises a Store.
type Option func(*Store)

// WithChangeHook registers fn to receive the entries after every mutation.
func WithChangeHook(fn func([]domain.WishlistEntry)) Option {
	return func(s *Store) {
		s.onChange = fn
	}
}

// New returns an empty wishlist.
func New(opts ...Option) *Store {
	return Restore(nil, opts...)
}

// Restore rebuilds a wishlist from persisted entries, dropping blanks and duplicates.
func Restore(saved []domain.WishlistEntry, opts ...Option) *Store {
	s := &Store{items: []domain.WishlistEntry{}}
	for _, entry := range saved {
		if id := identity(entry.Product); id != "" && s.indexOf(id) < 0 {
			s.items = append(s.items, entry)
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Add appends product unless an entry with the same identity exists. It reports whether the
// wishlist changed.
func (s *Store) Add(product domain.Product) bool {
	id := identity(product)
	if id == "" || s.indexOf(id) >= 0 {
		return false
	}
	s.items = append(s.items, domain.WishlistEntry{Product: product})
	s.changed()
	return true
}

// Remove deletes the entry for productID and reports whether one existed.
func (s *Store) Remove(productID string) bool {
	idx := s.indexOf(strings.TrimSpace(productID))
	if idx < 0 {
		return false
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.changed()
	return true
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.items = []domain.WishlistEntry{}
	s.changed()
}

// Contains reports whether productID is in the wishlist.
func (s *Store) Contains(productID string) bool {
	return s.indexOf(strings.TrimSpace(productID)) >= 0
}

// Items returns a copy of the entries in insertion order.
func (s *Store) Items() []domain.WishlistEntry {
	out := make([]domain.WishlistEntry, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int { return len(s.items) }

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange(s.Items())
	}
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, entry := range s.items {
		if identity(entry.Product) == id {
			return i
		}
	}
	return -1
}

func identity(product domain.Product) string {
	return strings.TrimSpace(product.ID)
}
