package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/cart"
	"github.com/hanko-field/storefront/internal/catalog"
	"github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/variant"
)

var errCartCatalogRequired = errors.New("cart service: catalog is required")

const maxLineQuantity = 99

var (
	// ErrSelectionRequired indicates the shopper has not chosen both a size and a color.
	ErrSelectionRequired = errors.New("cart service: size and color selection required")
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrVariantUnavailable indicates no inventory line exists for the chosen size and color.
	ErrVariantUnavailable = errors.New("cart service: variant unavailable")
	// ErrCartItemNotFound indicates the cart has no line for the supplied key.
	ErrCartItemNotFound = errors.New("cart service: item not found")
)

// CartServiceDeps wires the cart service.
type CartServiceDeps struct {
	Catalog CatalogService
	Logger  *zap.Logger
}

type cartService struct {
	catalog CatalogService
	logger  *zap.Logger
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Catalog == nil {
		return nil, errCartCatalogRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cartService{catalog: deps.Catalog, logger: logger}, nil
}

// AddToCart resolves the selected variant, clamps the quantity to the stock not already in the cart
// and adds the line. A clamp is reported through Warning, not as an error.
func (s *cartService) AddToCart(ctx context.Context, store *cart.Store, cmd AddToCartCommand) (AddToCartResult, error) {
	if store == nil {
		return AddToCartResult{}, fmt.Errorf("%w: cart is required", ErrCartInvalidInput)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	size := strings.TrimSpace(cmd.Size)
	color := strings.TrimSpace(cmd.Color)
	if productID == "" {
		return AddToCartResult{}, fmt.Errorf("%w: productId is required", ErrCartInvalidInput)
	}
	if size == "" || color == "" {
		return AddToCartResult{}, ErrSelectionRequired
	}
	quantity := cmd.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 || quantity > maxLineQuantity {
		return AddToCartResult{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxLineQuantity)
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return AddToCartResult{}, err
	}
	line, ok := variant.Resolve(product.Inventory, size, color)
	if !ok {
		return AddToCartResult{}, fmt.Errorf("%w: %s / %s", ErrVariantUnavailable, size, color)
	}

	key := domain.LineKey{ProductID: product.ID, Size: line.Size, Color: catalog.ColorName(line.Color)}
	inCart := 0
	if existing, found := store.Find(key); found {
		inCart = existing.Quantity
	}
	remaining := line.Stock - inCart
	if remaining < 0 {
		remaining = 0
	}

	result := AddToCartResult{Requested: quantity, Added: quantity}
	if quantity > remaining {
		result.Added = remaining
		result.Warning = stockWarning(line.Stock, inCart, remaining)
		s.logger.Info("add to cart clamped to stock",
			zap.String("productID", product.ID),
			zap.String("inventoryID", line.ID),
			zap.Int("requested", quantity),
			zap.Int("added", remaining),
		)
	}
	// The product stored on the line does not carry inventory; stock is re-read on every add.
	stored := product
	stored.Inventory = nil
	if result.Added > 0 {
		if err := store.AddItem(stored, result.Added, key.Size, key.Color, line.ID); err != nil {
			return AddToCartResult{}, fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
		}
	}
	result.Cart = store.Snapshot()
	return result, nil
}

// UpdateQuantity sets a line's quantity. Stock is not consulted.
func (s *cartService) UpdateQuantity(_ context.Context, store *cart.Store, cmd UpdateCartItemCommand) (domain.Cart, error) {
	if store == nil {
		return domain.Cart{}, fmt.Errorf("%w: cart is required", ErrCartInvalidInput)
	}
	if cmd.Quantity > maxLineQuantity {
		return domain.Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxLineQuantity)
	}
	if err := store.UpdateItemQuantity(cmd.Key, cmd.Quantity); err != nil {
		return domain.Cart{}, mapCartError(err)
	}
	return store.Snapshot(), nil
}

// RemoveItem deletes a line.
func (s *cartService) RemoveItem(_ context.Context, store *cart.Store, key domain.LineKey) (domain.Cart, error) {
	if store == nil {
		return domain.Cart{}, fmt.Errorf("%w: cart is required", ErrCartInvalidInput)
	}
	if err := store.RemoveItem(key); err != nil {
		return domain.Cart{}, mapCartError(err)
	}
	return store.Snapshot(), nil
}

func mapCartError(err error) error {
	switch {
	case errors.Is(err, cart.ErrItemNotFound):
		return ErrCartItemNotFound
	case errors.Is(err, cart.ErrInvalidInput):
		return fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
	default:
		return err
	}
}

func stockWarning(stock, inCart, remaining int) string {
	switch {
	case stock <= 0:
		return "This variant is out of stock."
	case remaining == 0:
		return fmt.Sprintf("Only %d in stock and all of them are already in your cart.", stock)
	case inCart > 0:
		return fmt.Sprintf("Only %d in stock; %d already in your cart, added %d.", stock, inCart, remaining)
	default:
		return fmt.Sprintf("Only %d in stock; quantity adjusted to %d.", stock, remaining)
	}
}
