package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
	"github.com/hanko-field/storefront/internal/reviews"
	"github.com/hanko-field/storefront/internal/services"
	"github.com/hanko-field/storefront/internal/session"
)

const defaultBodyLimit = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeBody reads a bounded JSON body into out, writing the error response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, out any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return false
	}
	return true
}

// withSession runs fn against the caller's session, answering 400 when the request carries no usable id.
func withSession(w http.ResponseWriter, r *http.Request, sessions sessionRunner, fn func(*session.Session) error) bool {
	ctx := r.Context()
	err := sessions.With(ctx, sessionID(r), fn)
	if err == nil {
		return true
	}
	if errors.Is(err, session.ErrInvalidSessionID) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_session", "a valid session id is required", http.StatusBadRequest))
		return false
	}
	writeServiceError(ctx, w, err)
	return false
}

// writeServiceError maps domain and service errors onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var submission *reviews.SubmissionError
	switch {
	case errors.Is(err, services.ErrSelectionRequired):
		httpx.WriteError(ctx, w, httpx.NewError("selection_required", "Please select a size and color.", http.StatusBadRequest))
	case errors.Is(err, services.ErrCartInvalidInput), errors.Is(err, reviews.ErrReviewInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_input", trimSentinel(err), http.StatusBadRequest))
	case errors.Is(err, services.ErrVariantUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("variant_unavailable", "The selected size and color are not available.", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is temporarily unavailable", http.StatusBadGateway))
	case errors.Is(err, reviews.ErrReviewUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "Please log in to leave a review.", http.StatusUnauthorized))
	case errors.Is(err, reviews.ErrReviewInFlight):
		httpx.WriteError(ctx, w, httpx.NewError("review_pending", "A review for this product is already being submitted.", http.StatusConflict))
	case errors.Is(err, reviews.ErrDuplicateReview):
		httpx.WriteError(ctx, w, httpx.NewError("review_duplicate", reviews.FailureMessage(err), http.StatusConflict))
	case errors.Is(err, reviews.ErrReviewRejected):
		httpx.WriteError(ctx, w, httpx.NewError("review_rejected", reviews.FailureMessage(err), http.StatusUnprocessableEntity))
	case errors.Is(err, reviews.ErrReviewForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("review_forbidden", reviews.FailureMessage(err), http.StatusForbidden))
	case errors.As(err, &submission), errors.Is(err, reviews.ErrServiceUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("reviews_unavailable", reviews.FailureMessage(err), http.StatusBadGateway))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "request cancelled", http.StatusGatewayTimeout))
	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

// trimSentinel drops the package prefix of a wrapped sentinel so the remaining detail reads as a
// user-facing message.
func trimSentinel(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, "invalid input: "); idx >= 0 {
		return msg[idx+len("invalid input: "):]
	}
	return "invalid input"
}
