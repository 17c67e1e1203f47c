package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestHTTPClientCreateDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/products/p1/reviews", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 4, body["rating"])
		assert.Equal(t, "solid", body["comment"])

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"_id":"r1","product":{"_id":"p1"},"user":{"_id":"u1","name":"Ada"},"rating":4,"comment":"solid","createdAt":"2024-05-01T10:00:00Z"}}`)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(srv.URL + "/api")
	require.NoError(t, err)

	review, err := client.Create(context.Background(), CreateRequest{ProductID: "p1", Rating: 4, Comment: "solid", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "r1", review.ID)
	assert.Equal(t, "p1", review.ProductID)
	assert.Equal(t, "u1", review.UserID)
	assert.Equal(t, "Ada", review.UserName)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), review.CreatedAt)
}

func TestHTTPClientCreateMapsFailures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		kind    error
		message string
	}{
		{"duplicate", http.StatusConflict, `{"message":"exists"}`, ErrDuplicateReview, msgDuplicate},
		{"validation with detail", http.StatusUnprocessableEntity, `{"error":{"message":"Comment too short"}}`, ErrReviewRejected, "Comment too short"},
		{"validation without detail", http.StatusBadRequest, ``, ErrReviewRejected, msgRejected},
		{"unauthorised", http.StatusUnauthorized, ``, ErrReviewForbidden, msgForbidden},
		{"server error", http.StatusBadGateway, `oops`, ErrServiceUnavailable, msgUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			client, err := NewHTTPClient(srv.URL)
			require.NoError(t, err)
			_, err = client.Create(context.Background(), CreateRequest{ProductID: "p1", Rating: 4, Comment: "x", Token: "tok"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			assert.Equal(t, tc.message, FailureMessage(err))
		})
	}
}

func TestHTTPClientCreateNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := NewHTTPClient(url)
	require.NoError(t, err)
	_, err = client.Create(context.Background(), CreateRequest{ProductID: "p1", Rating: 4, Comment: "x", Token: "tok"})
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, msgUnavailable, FailureMessage(err))
}

func TestHTTPClientList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/products/missing/reviews" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"reviews":[{"id":"r1","userId":"u1","rating":5,"comment":"great"},{"_id":"r2","user":"u2","rating":3}]}`)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(srv.URL)
	require.NoError(t, err)

	reviews, err := client.List(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, "r2", reviews[1].ID)
	assert.Equal(t, "u2", reviews[1].UserID)
	assert.Equal(t, "p1", reviews[1].ProductID)

	reviews, err = client.List(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestFailureMessageForPlainErrors(t *testing.T) {
	assert.Equal(t, msgUnavailable, FailureMessage(errors.New("boom")))
	assert.Equal(t, msgDuplicate, FailureMessage(ErrDuplicateReview))
}

func TestPubSubPublisherPublishesEvent(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "review-events")
	require.NoError(t, err)
	defer topic.Stop()

	publisher, err := NewPubSubPublisher(topic)
	require.NoError(t, err)

	event := Event{
		Type:       EventCommitted,
		ReviewID:   "r1",
		ProductID:  "p1",
		Rating:     4,
		OccurredAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.PublishReviewEvent(ctx, event))

	messages := srv.Messages()
	require.Len(t, messages, 1)
	var payload Event
	require.NoError(t, json.Unmarshal(messages[0].Data, &payload))
	assert.Equal(t, event, payload)
	assert.Equal(t, "p1", messages[0].Attributes["productId"])
	_, hasUser := messages[0].Attributes["userId"]
	assert.False(t, hasUser)

	_, err = NewPubSubPublisher(nil)
	assert.Error(t, err)
}
