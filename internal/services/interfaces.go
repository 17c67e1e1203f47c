// Package services composes the catalog, variant and cart components into the operations the HTTP
// layer exposes.
package services

import (
	"context"

	"github.com/hanko-field/storefront/internal/cart"
	"github.com/hanko-field/storefront/internal/catalog"
	"github.com/hanko-field/storefront/internal/domain"
)

// CatalogSource is the raw catalog backend. *catalog.Client implements it.
type CatalogSource interface {
	ListProducts(ctx context.Context) (catalog.Listing, error)
	GetProduct(ctx context.Context, productID string) (catalog.Detail, error)
}

// CatalogService serves normalized products.
type CatalogService interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	GetProductView(ctx context.Context, productID string) (ProductView, error)
}

// CartService applies the add-to-cart flow and the quantity and removal operations to a cart.
type CartService interface {
	AddToCart(ctx context.Context, store *cart.Store, cmd AddToCartCommand) (AddToCartResult, error)
	UpdateQuantity(ctx context.Context, store *cart.Store, cmd UpdateCartItemCommand) (domain.Cart, error)
	RemoveItem(ctx context.Context, store *cart.Store, key domain.LineKey) (domain.Cart, error)
}

// ProductView is a product plus the facets a shopper can still pick.
type ProductView struct {
	Product        domain.Product      `json:"product"`
	AvailableSizes []string            `json:"availableSizes"`
	ColorsBySize   map[string][]string `json:"colorsBySize"`
}

// AddToCartCommand is a shopper's add-to-cart request.
type AddToCartCommand struct {
	ProductID string
	Size      string
	Color     string
	Quantity  int
}

// AddToCartResult reports what was added. Warning is set when the quantity was clamped to stock;
// Added may then be lower than Requested, possibly zero.
type AddToCartResult struct {
	Cart      domain.Cart `json:"cart"`
	Requested int         `json:"requested"`
	Added     int         `json:"added"`
	Warning   string      `json:"warning,omitempty"`
}

// UpdateCartItemCommand sets the quantity of one cart line.
type UpdateCartItemCommand struct {
	Key      domain.LineKey
	Quantity int
}
