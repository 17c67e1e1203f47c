// Package cart holds the in-session shopping cart. A Store is single-writer: callers serialise
// mutations (the session manager does this per session).
package cart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hanko-field/storefront/internal/catalog"
	"github.com/hanko-field/storefront/internal/domain"
)

var (
	// ErrInvalidInput indicates the caller supplied an unusable product or quantity.
	ErrInvalidInput = errors.New("cart: invalid input")
	// ErrItemNotFound indicates no cart line matches the supplied key.
	ErrItemNotFound = errors.New("cart: item not found")
)

// Store keeps the ordered cart lines together with their derived totals. Lines are keyed by product
// and variant, so two sizes of the same product are separate lines. Stock is not checked here.
type Store struct {
	items      []domain.CartEntry
	totalItems int
	totalPrice int64
	onChange   func(domain.Cart)
}

// Option customises a Store.
type Option func(*Store)

// WithChangeHook registers fn to receive a snapshot after every mutation.
func WithChangeHook(fn func(domain.Cart)) Option {
	return func(s *Store) {
		s.onChange = fn
	}
}

// New returns an empty cart store.
func New(opts ...Option) *Store {
	return Restore(domain.Cart{}, opts...)
}

// Restore rebuilds a store from a persisted cart. Totals are recomputed from the lines, lines with
// a missing product or a non-positive quantity are dropped, and lines sharing a key are merged
// into the first one.
func Restore(saved domain.Cart, opts ...Option) *Store {
	s := &Store{items: make([]domain.CartEntry, 0, len(saved.Items))}
	for _, entry := range saved.Items {
		if strings.TrimSpace(entry.Product.ID) == "" || entry.Quantity <= 0 {
			continue
		}
		if idx := s.indexOf(entry.Key()); idx >= 0 {
			s.items[idx].Quantity += entry.Quantity
			continue
		}
		s.items = append(s.items, entry)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.recompute()
	return s
}

// AddItem increments the quantity of the line with the same product, size and color, or appends a
// new line when none exists.
func (s *Store) AddItem(product domain.Product, quantity int, size, color, inventoryID string) error {
	if strings.TrimSpace(product.ID) == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidInput)
	}

	key := domain.LineKey{ProductID: product.ID, Size: size, Color: color}
	if idx := s.indexOf(key); idx >= 0 {
		s.items[idx].Quantity += quantity
		s.items[idx].Product = product
		if id := strings.TrimSpace(inventoryID); id != "" {
			s.items[idx].InventoryID = id
		}
	} else {
		s.items = append(s.items, domain.CartEntry{
			Product:     product,
			Size:        size,
			Color:       color,
			InventoryID: strings.TrimSpace(inventoryID),
			Quantity:    quantity,
		})
	}
	s.changed()
	return nil
}

// RemoveItem deletes the line identified by key.
func (s *Store) RemoveItem(key domain.LineKey) error {
	idx := s.indexOf(key)
	if idx < 0 {
		return ErrItemNotFound
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.changed()
	return nil
}

// UpdateItemQuantity sets the quantity of the line identified by key. The value is not clamped
// against stock.
func (s *Store) UpdateItemQuantity(key domain.LineKey, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidInput)
	}
	idx := s.indexOf(key)
	if idx < 0 {
		return ErrItemNotFound
	}
	s.items[idx].Quantity = quantity
	s.changed()
	return nil
}

// Clear removes every line.
func (s *Store) Clear() {
	s.items = []domain.CartEntry{}
	s.changed()
}

// Find returns the line identified by key.
func (s *Store) Find(key domain.LineKey) (domain.CartEntry, bool) {
	idx := s.indexOf(key)
	if idx < 0 {
		return domain.CartEntry{}, false
	}
	return s.items[idx], true
}

// Items returns a copy of the cart lines in insertion order.
func (s *Store) Items() []domain.CartEntry {
	out := make([]domain.CartEntry, len(s.items))
	copy(out, s.items)
	return out
}

// TotalItems is the sum of line quantities.
func (s *Store) TotalItems() int { return s.totalItems }

// TotalPrice is the sum of quantity times unit price over all lines.
func (s *Store) TotalPrice() int64 { return s.totalPrice }

// Snapshot returns the serialisable cart shape.
func (s *Store) Snapshot() domain.Cart {
	return domain.Cart{
		Items:      s.Items(),
		TotalItems: s.totalItems,
		TotalPrice: s.totalPrice,
	}
}

func (s *Store) changed() {
	s.recompute()
	if s.onChange != nil {
		s.onChange(s.Snapshot())
	}
}

func (s *Store) recompute() {
	var items int
	var price int64
	for _, entry := range s.items {
		items += entry.Quantity
		price += int64(entry.Quantity) * entry.Product.UnitPrice()
	}
	s.totalItems = items
	s.totalPrice = price
}

func (s *Store) indexOf(key domain.LineKey) int {
	for i, entry := range s.items {
		if sameLine(entry.Key(), key) {
			return i
		}
	}
	return -1
}

func sameLine(a, b domain.LineKey) bool {
	return a.ProductID == b.ProductID &&
		strings.TrimSpace(a.Size) == strings.TrimSpace(b.Size) &&
		catalog.ColorName(a.Color) == catalog.ColorName(b.Color)
}
