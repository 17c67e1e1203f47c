package catalog

import (
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
)

const defaultTimeout = 8 * time.Second

// ErrProductNotFound is returned when the catalog service reports an unknown product.
var ErrProductNotFound = errors.New("catalog: product not found")

// StatusError reports a non-success response from the catalog service.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog: %s status %d: %s", e.Op, e.Status, e.Body)
}

// Client fetches raw catalog records from the catalog service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// ClientOption customises the Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithAPIKey sets the key sent in the X-API-Key header.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// NewClient constructs a catalog client rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("catalog client: base url is required")
	}
	c := &Client{
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

// ListProducts calls the product listing endpoint.
func (c *Client) ListProducts(ctx context.Context) (Listing, error) {
	endpoint, err := url.JoinPath(c.baseURL, "products")
	if err != nil {
		return Listing{}, err
	}
	var listing Listing
	if err := c.getJSON(ctx, "list", endpoint, &listing); err != nil {
		return Listing{}, err
	}
	return listing, nil
}

// GetProduct calls the single product endpoint.
func (c *Client) GetProduct(ctx context.Context, productID string) (Detail, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Detail{}, ErrProductNotFound
	}
	endpoint, err := url.JoinPath(c.baseURL, "products", productID)
	if err != nil {
		return Detail{}, err
	}
	var detail Detail
	if err := c.getJSON(ctx, "get", endpoint, &detail); err != nil {
		return Detail{}, err
	}
	if detail.Data.Product.Identity() == "" {
		return Detail{}, ErrProductNotFound
	}
	return detail, nil
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrProductNotFound
	}
	if resp.StatusCode >= 400 {
		return &StatusError{Op: op, Status: resp.StatusCode, Body: drainError(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("catalog: %s: decode response: %w", op, err)
	}
	return nil
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
