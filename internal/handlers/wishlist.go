package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
	"github.com/hanko-field/storefront/internal/session"
)

// WishlistHandlers serves the session wishlist.
type WishlistHandlers struct {
	sessions sessionRunner
	catalog  services.CatalogService
}

// NewWishlistHandlers constructs wishlist handlers.
func NewWishlistHandlers(sessions sessionRunner, catalog services.CatalogService) *WishlistHandlers {
	return &WishlistHandlers{sessions: sessions, catalog: catalog}
}

// Routes registers the wishlist endpoints.
func (h *WishlistHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.list)
	r.Put("/{productId}", h.add)
	r.Delete("/{productId}", h.remove)
}

type wishlistResponse struct {
	Items   []domain.WishlistEntry `json:"items"`
	Count   int                    `json:"count"`
	Changed *bool                  `json:"changed,omitempty"`
}

func (h *WishlistHandlers) list(w http.ResponseWriter, r *http.Request) {
	var resp wishlistResponse
	if !withSession(w, r, h.sessions, func(s *session.Session) error {
		resp = wishlistSnapshot(s, nil)
		return nil
	}) {
		return
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *WishlistHandlers) add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	product.Inventory = nil

	var resp wishlistResponse
	if !withSession(w, r, h.sessions, func(s *session.Session) error {
		added := s.Wishlist().Add(product)
		resp = wishlistSnapshot(s, &added)
		return nil
	}) {
		return
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *WishlistHandlers) remove(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	var resp wishlistResponse
	if !withSession(w, r, h.sessions, func(s *session.Session) error {
		removed := s.Wishlist().Remove(productID)
		resp = wishlistSnapshot(s, &removed)
		return nil
	}) {
		return
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func wishlistSnapshot(s *session.Session, changed *bool) wishlistResponse {
	items := s.Wishlist().Items()
	return wishlistResponse{Items: items, Count: len(items), Changed: changed}
}
