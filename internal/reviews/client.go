package reviews

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hanko-field/storefront/internal/catalog"
	"github.com/hanko-field/storefront/internal/domain"
)

const defaultTimeout = 8 * time.Second

var (
	// ErrDuplicateReview is reported when the service already holds a review by this user.
	ErrDuplicateReview = errors.New("reviews: duplicate review")
	// ErrReviewRejected is reported when the service refuses the rating or comment.
	ErrReviewRejected = errors.New("reviews: review rejected")
	// ErrReviewForbidden is reported when the service refuses the token.
	ErrReviewForbidden = errors.New("reviews: not authorised")
	// ErrServiceUnavailable is reported for transport failures and unexpected responses.
	ErrServiceUnavailable = errors.New("reviews: service unavailable")
)

// CreateRequest is what the coordinator sends to the review service.
type CreateRequest struct {
	ProductID string
	Rating    int
	Comment   string
	Token     string
}

// ReviewClient talks to the external review service.
type ReviewClient interface {
	Create(ctx context.Context, req CreateRequest) (domain.Review, error)
	List(ctx context.Context, productID string) ([]domain.Review, error)
}

// SubmissionError carries a message suitable for display alongside the failure class.
type SubmissionError struct {
	Status  int
	Message string
	kind    error
	cause   error
}

// Error implements the error interface.
func (e *SubmissionError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%v: %s", e.kind, e.Message)
}

// Unwrap exposes the failure class and the transport cause.
func (e *SubmissionError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

// FailureMessage returns the human-readable text for err.
func FailureMessage(err error) string {
	var subErr *SubmissionError
	if errors.As(err, &subErr) && subErr.Message != "" {
		return subErr.Message
	}
	switch {
	case errors.Is(err, ErrDuplicateReview):
		return msgDuplicate
	case errors.Is(err, ErrReviewRejected):
		return msgRejected
	case errors.Is(err, ErrReviewForbidden):
		return msgForbidden
	default:
		return msgUnavailable
	}
}

const (
	msgDuplicate   = "You have already reviewed this product."
	msgRejected    = "Your review could not be accepted. Check the rating and comment and try again."
	msgForbidden   = "Please sign in again to post a review."
	msgUnavailable = "We could not reach the review service. Please try again later."
)

// HTTPClient is the REST ReviewClient.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// HTTPClientOption customises HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPDoer overrides the underlying http.Client.
func WithHTTPDoer(hc *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithReviewAPIKey sets the key sent in the X-API-Key header.
func WithReviewAPIKey(key string) HTTPClientOption {
	return func(c *HTTPClient) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// NewHTTPClient constructs a client rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPClientOption) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("review client: base url is required")
	}
	c := &HTTPClient{
		baseURL: base,
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Create posts a review with the caller's bearer token.
func (c *HTTPClient) Create(ctx context.Context, req CreateRequest) (domain.Review, error) {
	endpoint, err := url.JoinPath(c.baseURL, "products", req.ProductID, "reviews")
	if err != nil {
		return domain.Review{}, &SubmissionError{Message: msgUnavailable, kind: ErrServiceUnavailable, cause: err}
	}
	body, err := json.Marshal(map[string]any{
		"rating":  req.Rating,
		"comment": req.Comment,
	})
	if err != nil {
		return domain.Review{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Review{}, &SubmissionError{Message: msgUnavailable, kind: ErrServiceUnavailable, cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.Review{}, &SubmissionError{Message: msgUnavailable, kind: ErrServiceUnavailable, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return domain.Review{}, statusError(resp)
	}

	var envelope struct {
		Data   *wireReview `json:"data"`
		Review *wireReview `json:"review"`
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Review{}, &SubmissionError{Message: msgUnavailable, kind: ErrServiceUnavailable, cause: err}
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return domain.Review{}, &SubmissionError{Message: msgUnavailable, kind: ErrServiceUnavailable, cause: err}
	}
	switch {
	case envelope.Data != nil:
		return envelope.Data.toDomain(req.ProductID), nil
	case envelope.Review != nil:
		return envelope.Review.toDomain(req.ProductID), nil
	}
	var bare wireReview
	if err := json.Unmarshal(raw, &bare); err != nil {
		return domain.Review{}, &SubmissionError{Message: msgUnavailable, kind: ErrServiceUnavailable, cause: err}
	}
	return bare.toDomain(req.ProductID), nil
}

// List fetches the confirmed reviews of a product.
func (c *HTTPClient) List(ctx context.Context, productID string) ([]domain.Review, error) {
	endpoint, err := url.JoinPath(c.baseURL, "products", productID, "reviews")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return []domain.Review{}, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: list status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	var wires []wireReview
	if err := json.Unmarshal(raw, &wires); err != nil {
		var envelope struct {
			Data    []wireReview `json:"data"`
			Reviews []wireReview `json:"reviews"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("%w: decode reviews: %v", ErrServiceUnavailable, err)
		}
		wires = envelope.Data
		if len(wires) == 0 {
			wires = envelope.Reviews
		}
	}
	out := make([]domain.Review, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.toDomain(productID))
	}
	return out, nil
}

func statusError(resp *http.Response) error {
	detail := serverMessage(resp.Body)
	switch resp.StatusCode {
	case http.StatusConflict:
		return &SubmissionError{Status: resp.StatusCode, Message: msgDuplicate, kind: ErrDuplicateReview}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		message := msgRejected
		if detail != "" {
			message = detail
		}
		return &SubmissionError{Status: resp.StatusCode, Message: message, kind: ErrReviewRejected}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &SubmissionError{Status: resp.StatusCode, Message: msgForbidden, kind: ErrReviewForbidden}
	default:
		return &SubmissionError{
			Status:  resp.StatusCode,
			Message: msgUnavailable,
			kind:    ErrServiceUnavailable,
			cause:   fmt.Errorf("status %d", resp.StatusCode),
		}
	}
}

// serverMessage extracts {"message": ...} or {"error": {"message": ...}} from an error body.
func serverMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(body.Message); msg != "" {
		return msg
	}
	var nested struct {
		Message string `json:"message"`
	}
	if len(body.Error) > 0 && json.Unmarshal(body.Error, &nested) == nil {
		return strings.TrimSpace(nested.Message)
	}
	var flat string
	if len(body.Error) > 0 && json.Unmarshal(body.Error, &flat) == nil {
		return strings.TrimSpace(flat)
	}
	return ""
}

type wireReview struct {
	ID        string      `json:"id"`
	AltID     string      `json:"_id"`
	ProductID string      `json:"productId"`
	Product   catalog.Ref `json:"product"`
	UserID    string      `json:"userId"`
	User      wireUser    `json:"user"`
	UserName  string      `json:"userName"`
	Rating    int         `json:"rating"`
	Comment   string      `json:"comment"`
	CreatedAt string      `json:"createdAt"`
}

// wireUser accepts either a bare user id or an embedded user object.
type wireUser struct {
	ID   string
	Name string
}

func (u *wireUser) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		u.ID = strings.TrimSpace(id)
		return nil
	}
	var obj struct {
		ID    string `json:"id"`
		AltID string `json:"_id"`
		Name  string `json:"name"`
		Full  string `json:"fullName"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	u.ID = firstNonEmpty(obj.ID, obj.AltID)
	u.Name = firstNonEmpty(obj.Name, obj.Full)
	return nil
}

func (w wireReview) toDomain(productID string) domain.Review {
	return domain.Review{
		ID:        firstNonEmpty(w.ID, w.AltID),
		ProductID: firstNonEmpty(w.ProductID, string(w.Product), productID),
		UserID:    firstNonEmpty(w.UserID, w.User.ID),
		UserName:  firstNonEmpty(w.UserName, w.User.Name),
		Rating:    w.Rating,
		Comment:   w.Comment,
		CreatedAt: parseTime(w.CreatedAt),
	}
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
