package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
	"github.com/hanko-field/storefront/internal/session"
)

const maxLoginBodySize = 16 * 1024

// SessionHandlers records the outcome of the external login flow and ends sessions.
type SessionHandlers struct {
	sessions sessionRunner
}

// NewSessionHandlers constructs session handlers.
func NewSessionHandlers(sessions sessionRunner) *SessionHandlers {
	return &SessionHandlers{sessions: sessions}
}

// Routes registers the session endpoints.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.describe)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
}

type loginRequest struct {
	Token string              `json:"token"`
	User  *domain.UserProfile `json:"user"`
}

type sessionResponse struct {
	SessionID     string              `json:"sessionId"`
	Authenticated bool                `json:"authenticated"`
	User          *domain.UserProfile `json:"user"`
	CartItems     int                 `json:"cartItems"`
	WishlistCount int                 `json:"wishlistCount"`
}

func describeSession(s *session.Session) sessionResponse {
	return sessionResponse{
		SessionID:     s.ID(),
		Authenticated: s.Authenticated(),
		User:          s.User(),
		CartItems:     s.Cart().TotalItems(),
		WishlistCount: s.Wishlist().Len(),
	}
}

func (h *SessionHandlers) describe(w http.ResponseWriter, r *http.Request) {
	var resp sessionResponse
	if !withSession(w, r, h.sessions, func(s *session.Session) error {
		resp = describeSession(s)
		return nil
	}) {
		return
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *SessionHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loginRequest
	if !decodeBody(w, r, maxLoginBodySize, &req) {
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		token = auth.TokenFromRequest(r)
	}
	if token == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "token is required", http.StatusBadRequest))
		return
	}

	profile := req.User
	if profile == nil {
		profile = &domain.UserProfile{}
	}
	profile.ID = strings.TrimSpace(profile.ID)
	if profile.ID == "" {
		profile.ID = auth.SubjectFromToken(token)
	}
	if profile.ID == "" {
		profile = nil
	}

	var resp sessionResponse
	if !withSession(w, r, h.sessions, func(s *session.Session) error {
		s.SetToken(token)
		s.SetUser(profile)
		resp = describeSession(s)
		return nil
	}) {
		return
	}
	requestctx.Logger(ctx).Info("session authenticated", zap.Bool("hasProfile", profile != nil))
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *SessionHandlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.sessions.Logout(ctx, sessionID(r)); err != nil {
		if errors.Is(err, session.ErrInvalidSessionID) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_session", "a valid session id is required", http.StatusBadRequest))
			return
		}
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
