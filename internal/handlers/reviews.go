package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
	"github.com/hanko-field/storefront/internal/reviews"
	"github.com/hanko-field/storefront/internal/session"
)

const (
	maxReviewBodySize     = 32 * 1024
	defaultReviewLimit    = 5
	defaultReviewWindow   = time.Minute
	defaultReviewWaitTime = 10 * time.Second
)

type reviewCoordinator interface {
	Refresh(ctx context.Context, productID string) error
	Snapshot(productID string) reviews.Board
	Submit(ctx context.Context, cmd reviews.SubmitCommand) (*reviews.Task, error)
}

// ReviewHandlers serves product reviews and the optimistic review submission flow.
type ReviewHandlers struct {
	sessions    sessionRunner
	coordinator reviewCoordinator
	limiter     rateLimiter
	waitTimeout time.Duration
}

// ReviewOption customises ReviewHandlers.
type ReviewOption func(*ReviewHandlers)

// WithReviewRateLimit limits submissions per session. A non-positive limit disables limiting.
func WithReviewRateLimit(limit int, window time.Duration, clock func() time.Time) ReviewOption {
	return func(h *ReviewHandlers) {
		h.limiter = newWindowLimiter(limit, window, clock)
	}
}

// WithReviewWaitTimeout bounds how long a ?wait=true submission blocks for the outcome.
func WithReviewWaitTimeout(timeout time.Duration) ReviewOption {
	return func(h *ReviewHandlers) {
		if timeout > 0 {
			h.waitTimeout = timeout
		}
	}
}

// NewReviewHandlers constructs review handlers.
func NewReviewHandlers(sessions sessionRunner, coordinator reviewCoordinator, opts ...ReviewOption) *ReviewHandlers {
	h := &ReviewHandlers{
		sessions:    sessions,
		coordinator: coordinator,
		limiter:     newWindowLimiter(defaultReviewLimit, defaultReviewWindow, nil),
		waitTimeout: defaultReviewWaitTime,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the review endpoints under /products.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{productId}/reviews", h.listReviews)
	r.Post("/{productId}/reviews", h.submitReview)
}

type submitReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type submitReviewResponse struct {
	ReviewID string        `json:"reviewId"`
	Board    reviews.Board `json:"board"`
}

func (h *ReviewHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	if err := h.coordinator.Refresh(ctx, productID); err != nil {
		// The last known board is still served; the shopper only loses freshness.
		requestctx.Logger(ctx).Warn("review refresh failed", zap.String("productID", productID), zap.Error(err))
	}
	writeJSONResponse(w, http.StatusOK, h.coordinator.Snapshot(productID))
}

func (h *ReviewHandlers) submitReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	if h.limiter != nil {
		if ok, retryAfter := h.limiter.Allow(sessionID(r)); !ok {
			seconds := int((retryAfter + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many review submissions, try again later", http.StatusTooManyRequests).
				WithDetails(map[string]any{"retry_after_seconds": seconds}))
			return
		}
	}

	var req submitReviewRequest
	if !decodeBody(w, r, maxReviewBodySize, &req) {
		return
	}

	cmd := reviews.SubmitCommand{ProductID: productID, Rating: req.Rating, Comment: req.Comment}
	if !withSession(w, r, h.sessions, func(s *session.Session) error {
		cmd.Token = auth.TokenFromRequest(r)
		if cmd.Token == "" {
			cmd.Token = s.Token()
		}
		if user := s.User(); user != nil {
			cmd.UserID = user.ID
			cmd.UserName = user.DisplayName
		}
		if cmd.UserID == "" {
			cmd.UserID = auth.SubjectFromToken(cmd.Token)
		}
		return nil
	}) {
		return
	}

	task, err := h.coordinator.Submit(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		writeJSONResponse(w, http.StatusAccepted, submitReviewResponse{ReviewID: task.ReviewID, Board: h.coordinator.Snapshot(productID)})
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.waitTimeout)
	defer cancel()
	select {
	case <-task.Done():
	case <-waitCtx.Done():
	}
	result, resolved := task.Result()
	if !resolved {
		// Still pending; the outcome shows up on the next GET.
		writeJSONResponse(w, http.StatusAccepted, submitReviewResponse{ReviewID: task.ReviewID, Board: h.coordinator.Snapshot(productID)})
		return
	}
	if result.State == reviews.StateRolledBack {
		writeServiceError(ctx, w, result.Err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, submitReviewResponse{ReviewID: result.Review.ID, Board: h.coordinator.Snapshot(productID)})
}
