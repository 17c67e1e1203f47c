package reviews

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/storefront/internal/domain"
)

type stubClient struct {
	mu      sync.Mutex
	release chan struct{}
	review  domain.Review
	err     error
	panics  bool
	calls   []CreateRequest
	listed  []domain.Review
}

func (s *stubClient) Create(ctx context.Context, req CreateRequest) (domain.Review, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	if s.release != nil {
		<-s.release
	}
	if s.panics {
		panic("boom")
	}
	return s.review, s.err
}

func (s *stubClient) List(context.Context, string) ([]domain.Review, error) {
	if s.listed != nil {
		return s.listed, nil
	}
	return []domain.Review{{ID: "r9", ProductID: "p1", Rating: 2}}, nil
}

type captureEvents struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureEvents) PublishReviewEvent(_ context.Context, event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *captureEvents) published() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// blockingEvents holds every publish until release is closed.
type blockingEvents struct {
	release chan struct{}
}

func (b *blockingEvents) PublishReviewEvent(ctx context.Context, _ Event) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestCoordinator(t *testing.T, client ReviewClient, events EventPublisher) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(Deps{
		Client:      client,
		Events:      events,
		Clock:       func() time.Time { return fixedNow },
		IDGenerator: func() string { return "local_1" },
	})
	require.NoError(t, err)
	return c
}

func confirmedReviews() []domain.Review {
	return []domain.Review{
		{ID: "r1", ProductID: "p1", UserID: "u1", Rating: 5, Comment: "great"},
		{ID: "r2", ProductID: "p1", UserID: "u2", Rating: 3, Comment: "ok"},
	}
}

func validCommand() SubmitCommand {
	return SubmitCommand{ProductID: "p1", Rating: 1, Comment: "meh", Token: "tok", UserID: "u3"}
}

func waitResult(t *testing.T, task *Task) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	select {
	case <-task.Done():
	case <-ctx.Done():
		t.Fatal("task did not resolve")
	}
	res, ok := task.Result()
	require.True(t, ok)
	return res
}

func TestSubmitInsertsPendingEntryAtHead(t *testing.T) {
	client := &stubClient{release: make(chan struct{}), review: domain.Review{ID: "r3", Rating: 1, Comment: "meh"}}
	c := newTestCoordinator(t, client, nil)
	c.Load("p1", confirmedReviews())

	task, err := c.Submit(context.Background(), validCommand())
	require.NoError(t, err)

	reviews := c.Reviews("p1")
	require.Len(t, reviews, 3)
	assert.Equal(t, "local_1", reviews[0].ID)
	assert.True(t, reviews[0].Pending)
	assert.InDelta(t, 3.0, c.Average("p1"), 1e-9)
	state, _ := c.State("p1")
	assert.Equal(t, StatePending, state)

	_, resolved := task.Result()
	assert.False(t, resolved)

	close(client.release)
	res := waitResult(t, task)
	assert.Equal(t, StateCommitted, res.State)
}

func TestCommitReplacesPendingEntryInPlace(t *testing.T) {
	events := &captureEvents{}
	client := &stubClient{review: domain.Review{ID: "r3", Rating: 1, Comment: "meh"}}
	c := newTestCoordinator(t, client, events)
	c.Load("p1", confirmedReviews())

	task, err := c.Submit(context.Background(), validCommand())
	require.NoError(t, err)
	res := waitResult(t, task)

	require.Equal(t, StateCommitted, res.State)
	reviews := c.Reviews("p1")
	require.Len(t, reviews, 3)
	assert.Equal(t, "r3", reviews[0].ID)
	assert.False(t, reviews[0].Pending)
	assert.Equal(t, "p1", reviews[0].ProductID)
	assert.Equal(t, "u3", reviews[0].UserID)
	assert.Equal(t, "r1", reviews[1].ID)

	require.Eventually(t, func() bool { return len(events.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, EventCommitted, events.published()[0].Type)
	assert.Equal(t, "r3", events.published()[0].ReviewID)
}

func TestCommitDoesNotWaitForEventPublish(t *testing.T) {
	events := &blockingEvents{release: make(chan struct{})}
	defer close(events.release)
	client := &stubClient{review: domain.Review{ID: "r3", Rating: 1, Comment: "meh"}}
	c := newTestCoordinator(t, client, events)

	task, err := c.Submit(context.Background(), validCommand())
	require.NoError(t, err)
	res := waitResult(t, task)
	assert.Equal(t, StateCommitted, res.State)
}

func TestRefreshDuringPendingThenCommitKeepsOneEntry(t *testing.T) {
	stored := domain.Review{ID: "r3", ProductID: "p1", UserID: "u3", Rating: 1, Comment: "meh"}
	client := &stubClient{
		release: make(chan struct{}),
		review:  stored,
		listed:  append([]domain.Review{stored}, confirmedReviews()...),
	}
	c := newTestCoordinator(t, client, nil)
	c.Load("p1", confirmedReviews())

	task, err := c.Submit(context.Background(), validCommand())
	require.NoError(t, err)
	require.NoError(t, c.Refresh(context.Background(), "p1"))

	pending := c.Reviews("p1")
	require.Len(t, pending, 3)
	assert.True(t, pending[0].Pending)

	close(client.release)
	waitResult(t, task)

	ids := make([]string, 0, 3)
	for _, review := range c.Reviews("p1") {
		ids = append(ids, review.ID)
	}
	assert.Equal(t, []string{"r3", "r1", "r2"}, ids)
	assert.InDelta(t, 3.0, c.Average("p1"), 1e-9)
}

func TestCommitDropsServerCopyLoadedEarlier(t *testing.T) {
	// the server copy differs from the pending entry, so Load cannot recognise it
	stored := domain.Review{ID: "r3", ProductID: "p1", UserID: "u3", Rating: 1, Comment: "meh (edited)"}
	client := &stubClient{release: make(chan struct{}), review: stored, listed: []domain.Review{stored}}
	c := newTestCoordinator(t, client, nil)

	task, err := c.Submit(context.Background(), validCommand())
	require.NoError(t, err)
	require.NoError(t, c.Refresh(context.Background(), "p1"))
	require.Len(t, c.Reviews("p1"), 2)

	close(client.release)
	waitResult(t, task)

	reviews := c.Reviews("p1")
	require.Len(t, reviews, 1)
	assert.Equal(t, "r3", reviews[0].ID)
}

func TestRollbackRestoresPreSubmissionState(t *testing.T) {
	cases := map[string]*stubClient{
		"duplicate": {err: &SubmissionError{Status: 409, Message: msgDuplicate, kind: ErrDuplicateReview}},
		"network":   {err: errors.New("dial tcp: connection refused")},
		"panic":     {panics: true},
	}
	for name, client := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestCoordinator(t, client, nil)
			c.Load("p1", confirmedReviews())
			before := c.Reviews("p1")
			beforeAvg := c.Average("p1")

			task, err := c.Submit(context.Background(), validCommand())
			require.NoError(t, err)
			res := waitResult(t, task)

			assert.Equal(t, StateRolledBack, res.State)
			assert.NotEmpty(t, res.Message)
			assert.Error(t, res.Err)
			assert.Equal(t, before, c.Reviews("p1"))
			assert.Equal(t, beforeAvg, c.Average("p1"))
			state, message := c.State("p1")
			assert.Equal(t, StateRolledBack, state)
			assert.Equal(t, res.Message, message)
		})
	}
}

func TestRollbackMessageForDuplicate(t *testing.T) {
	client := &stubClient{err: &SubmissionError{Status: 409, Message: msgDuplicate, kind: ErrDuplicateReview}}
	c := newTestCoordinator(t, client, nil)
	task, err := c.Submit(context.Background(), validCommand())
	require.NoError(t, err)
	res := waitResult(t, task)
	assert.Equal(t, msgDuplicate, res.Message)
	assert.ErrorIs(t, res.Err, ErrDuplicateReview)
}

func TestSubmitValidationLeavesStateUntouched(t *testing.T) {
	client := &stubClient{}
	c := newTestCoordinator(t, client, nil)
	c.Load("p1", confirmedReviews())

	cases := []struct {
		name string
		mut  func(*SubmitCommand)
		want error
	}{
		{"no token", func(cmd *SubmitCommand) { cmd.Token = " " }, ErrReviewUnauthenticated},
		{"rating low", func(cmd *SubmitCommand) { cmd.Rating = 0 }, ErrReviewInvalidInput},
		{"rating high", func(cmd *SubmitCommand) { cmd.Rating = 6 }, ErrReviewInvalidInput},
		{"blank comment", func(cmd *SubmitCommand) { cmd.Comment = "<b> </b>" }, ErrReviewInvalidInput},
		{"no product", func(cmd *SubmitCommand) { cmd.ProductID = "" }, ErrReviewInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := validCommand()
			tc.mut(&cmd)
			task, err := c.Submit(context.Background(), cmd)
			assert.Nil(t, task)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, confirmedReviews(), c.Reviews("p1"))
			state, _ := c.State("p1")
			assert.Equal(t, StateIdle, state)
		})
	}
	assert.Empty(t, client.calls)
}

func TestSecondSubmitWhilePendingIsRejected(t *testing.T) {
	client := &stubClient{release: make(chan struct{}), review: domain.Review{ID: "r3"}}
	c := newTestCoordinator(t, client, nil)

	task, err := c.Submit(context.Background(), validCommand())
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), validCommand())
	assert.ErrorIs(t, err, ErrReviewInFlight)
	assert.Len(t, c.Reviews("p1"), 1)

	close(client.release)
	waitResult(t, task)

	client.release = nil
	_, err = c.Submit(context.Background(), validCommand())
	assert.NoError(t, err, "a new submission is allowed once the previous one resolved")
}

func TestSubmitSurvivesRequestCancellation(t *testing.T) {
	client := &stubClient{release: make(chan struct{}), review: domain.Review{ID: "r3"}}
	c := newTestCoordinator(t, client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	task, err := c.Submit(ctx, validCommand())
	require.NoError(t, err)
	cancel()
	close(client.release)

	assert.Equal(t, StateCommitted, waitResult(t, task).State)
}

func TestLoadKeepsPendingEntry(t *testing.T) {
	client := &stubClient{release: make(chan struct{}), err: errors.New("down")}
	c := newTestCoordinator(t, client, nil)
	c.Load("p1", confirmedReviews())

	task, err := c.Submit(context.Background(), validCommand())
	require.NoError(t, err)
	require.NoError(t, c.Refresh(context.Background(), "p1"))

	reviews := c.Reviews("p1")
	require.Len(t, reviews, 2)
	assert.Equal(t, "local_1", reviews[0].ID)
	assert.Equal(t, "r9", reviews[1].ID)

	close(client.release)
	waitResult(t, task)
	assert.Equal(t, []domain.Review{{ID: "r9", ProductID: "p1", Rating: 2}}, c.Reviews("p1"))
}

func TestSnapshotOfUnknownProduct(t *testing.T) {
	c := newTestCoordinator(t, &stubClient{}, nil)
	board := c.Snapshot("nope")
	assert.Empty(t, board.Reviews)
	assert.Zero(t, board.Average)
	assert.Equal(t, StateIdle, board.State)
}

func TestTaskResolvesOnce(t *testing.T) {
	task := newTask("p1", "local_1")
	assert.True(t, task.resolve(Result{State: StateCommitted}))
	assert.False(t, task.resolve(Result{State: StateRolledBack}))
	res, ok := task.Result()
	assert.True(t, ok)
	assert.Equal(t, StateCommitted, res.State)
}

func TestSanitizeComment(t *testing.T) {
	assert.Equal(t, "Nice fit", SanitizeComment("  <p>Nice   fit</p> "))
	assert.Equal(t, "line one\nline two", SanitizeComment("line one\r\nline   two"))
	assert.Equal(t, "", SanitizeComment("<script>alert(1)</script>"))
	assert.Equal(t, "fish & chips", SanitizeComment("fish & chips"))
}
