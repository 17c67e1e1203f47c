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

const maxCartBodySize = 8 * 1024

// CartHandlers serves the session cart.
type CartHandlers struct {
	sessions sessionRunner
	carts    services.CartService
}

// NewCartHandlers constructs cart handlers.
func NewCartHandlers(sessions sessionRunner, carts services.CartService) *CartHandlers {
	return &CartHandlers{sessions: sessions, carts: carts}
}

// Routes registers the cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items", h.updateItem)
	r.Delete("/items", h.removeItem)
}

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Quantity  int    `json:"quantity"`
}

func (req cartItemRequest) key() domain.LineKey {
	return domain.LineKey{
		ProductID: strings.TrimSpace(req.ProductID),
		Size:      strings.TrimSpace(req.Size),
		Color:     strings.TrimSpace(req.Color),
	}
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	var snapshot domain.Cart
	if !withSession(w, r, h.sessions, func(s *session.Session) error {
		snapshot = s.Cart().Snapshot()
		return nil
	}) {
		return
	}
	writeJSONResponse(w, http.StatusOK, snapshot)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	var snapshot domain.Cart
	if !withSession(w, r, h.sessions, func(s *session.Session) error {
		s.Cart().Clear()
		snapshot = s.Cart().Snapshot()
		return nil
	}) {
		return
	}
	writeJSONResponse(w, http.StatusOK, snapshot)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	var result services.AddToCartResult
	if !withSession(w, r, h.sessions, func(s *session.Session) error {
		var err error
		result, err = h.carts.AddToCart(r.Context(), s.Cart(), services.AddToCartCommand{
			ProductID: req.ProductID,
			Size:      req.Size,
			Color:     req.Color,
			Quantity:  req.Quantity,
		})
		return err
	}) {
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	key := req.key()
	if key.ProductID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_input", "productId is required", http.StatusBadRequest))
		return
	}
	var snapshot domain.Cart
	if !withSession(w, r, h.sessions, func(s *session.Session) error {
		var err error
		snapshot, err = h.carts.UpdateQuantity(r.Context(), s.Cart(), services.UpdateCartItemCommand{Key: key, Quantity: req.Quantity})
		return err
	}) {
		return
	}
	writeJSONResponse(w, http.StatusOK, snapshot)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	key := cartItemRequest{
		ProductID: query.Get("productId"),
		Size:      query.Get("size"),
		Color:     query.Get("color"),
	}.key()
	if key.ProductID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_input", "productId is required", http.StatusBadRequest))
		return
	}
	var snapshot domain.Cart
	if !withSession(w, r, h.sessions, func(s *session.Session) error {
		var err error
		snapshot, err = h.carts.RemoveItem(r.Context(), s.Cart(), key)
		return err
	}) {
		return
	}
	writeJSONResponse(w, http.StatusOK, snapshot)
}
