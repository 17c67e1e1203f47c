package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/catalog"
	"github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/variant"
)

var errCatalogSourceRequired = errors.New("catalog service: source is required")

// ErrCatalogUnavailable indicates the catalog backend could not be reached or answered with an error.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// ErrProductNotFound indicates the requested product does not exist.
var ErrProductNotFound = errors.New("catalog service: product not found")

// CatalogServiceDeps wires the catalog backend.
type CatalogServiceDeps struct {
	Source CatalogSource
	Logger *zap.Logger
}

type catalogService struct {
	source CatalogSource
	logger *zap.Logger
}

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Source == nil {
		return nil, errCatalogSourceRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &catalogService{source: deps.Source, logger: logger}, nil
}

// ListProducts returns the active products of the listing.
func (s *catalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	listing, err := s.source.ListProducts(ctx)
	if err != nil {
		return nil, s.mapError(ctx, "list", err)
	}
	products := catalog.NormalizeListing(listing)
	active := make([]domain.Product, 0, len(products))
	for _, product := range products {
		if product.Active {
			active = append(active, product)
		}
	}
	return active, nil
}

// GetProduct returns one normalized product.
func (s *catalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, ErrProductNotFound
	}
	detail, err := s.source.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, s.mapError(ctx, "get", err)
	}
	return catalog.NormalizeDetail(detail), nil
}

// GetProductView returns a product with its stock-filtered facets.
func (s *catalogService) GetProductView(ctx context.Context, productID string) (ProductView, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return ProductView{}, err
	}
	sizes := variant.AvailableSizes(product.Inventory)
	colors := make(map[string][]string, len(sizes))
	for _, size := range sizes {
		colors[size] = variant.AvailableColorsForSize(product.Inventory, size)
	}
	return ProductView{Product: product, AvailableSizes: sizes, ColorsBySize: colors}, nil
}

func (s *catalogService) mapError(ctx context.Context, op string, err error) error {
	if errors.Is(err, catalog.ErrProductNotFound) {
		return ErrProductNotFound
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	s.logger.Warn("catalog fetch failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}
