package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientListProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/products", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listingPayload))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL+"/v1/", WithAPIKey(" secret "), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	listing, err := client.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, listing.Products, 2)
	assert.Len(t, listing.Inventories, 5)
	assert.Len(t, listing.Discounts, 1)
}

func TestClientGetProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/products/p1":
			_, _ = w.Write([]byte(`{"data":{"product":{"_id":"p1","name":"Tee"},"inventory":[]}}`))
		case "/products/empty":
			_, _ = w.Write([]byte(`{"data":{}}`))
		case "/products/broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	ctx := context.Background()

	detail, err := client.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", detail.Data.Product.Identity())

	_, err = client.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = client.GetProduct(ctx, "empty")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = client.GetProduct(ctx, " ")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = client.GetProduct(ctx, "broken")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Status)
	assert.Equal(t, "get", statusErr.Op)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient("  ")
	assert.Error(t, err)
}
