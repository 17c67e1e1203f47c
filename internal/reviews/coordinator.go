// Package reviews runs optimistic review submission: a local entry is shown immediately and then
// either replaced by the server copy or rolled back.
package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/observability"
)

const (
	localIDPrefix  = "local_"
	tracerName     = "github.com/hanko-field/storefront/internal/reviews"
	publishTimeout = 5 * time.Second
)

var (
	// ErrReviewInvalidInput indicates a rating, comment or product id that fails local checks.
	ErrReviewInvalidInput = errors.New("reviews: invalid input")
	// ErrReviewUnauthenticated indicates the caller has no token.
	ErrReviewUnauthenticated = errors.New("reviews: authentication required")
	// ErrReviewInFlight indicates a submission for the product is still pending.
	ErrReviewInFlight = errors.New("reviews: submission already pending")
)

// State is the submission state of one product's review board.
type State int

const (
	StateIdle State = iota
	StatePending
	StateCommitted
	StateRolledBack
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "idle"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SubmitCommand carries one review submission.
type SubmitCommand struct {
	ProductID string
	Rating    int
	Comment   string
	Token     string
	UserID    string
	UserName  string
}

// Board is a read-only view of a product's reviews.
type Board struct {
	ProductID string          `json:"productId"`
	Reviews   []domain.Review `json:"reviews"`
	Average   float64         `json:"average"`
	State     State           `json:"state"`
	Message   string          `json:"message,omitempty"`
}

// Deps bundles the coordinator's collaborators.
type Deps struct {
	Client      ReviewClient
	Events      EventPublisher
	Logger      *zap.Logger
	Clock       func() time.Time
	IDGenerator func() string
	Tracer      trace.Tracer
}

type board struct {
	reviews   []domain.Review
	state     State
	message   string
	pendingID string
}

// Coordinator owns the review boards. It is safe for concurrent use; network calls run outside its
// lock.
type Coordinator struct {
	client   ReviewClient
	events   EventPublisher
	logger   *zap.Logger
	clock    func() time.Time
	newID    func() string
	tracer   trace.Tracer
	outcomes metric.Int64Counter

	mu     sync.Mutex
	boards map[string]*board
}

// NewCoordinator validates deps and constructs a Coordinator.
func NewCoordinator(deps Deps) (*Coordinator, error) {
	if deps.Client == nil {
		return nil, errors.New("review coordinator: client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return localIDPrefix + ulid.Make().String() }
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Coordinator{
		client:   deps.Client,
		events:   deps.Events,
		logger:   logger,
		clock:    func() time.Time { return clock().UTC() },
		newID:    newID,
		tracer:   tracer,
		outcomes: observability.Int64Counter(logger, "storefront.reviews.outcomes", "Review submissions by terminal state"),
		boards:   make(map[string]*board),
	}, nil
}

// Load replaces the confirmed reviews of productID. A pending entry, if any, stays at the head.
func (c *Coordinator) Load(productID string, reviews []domain.Review) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.boardLocked(productID)
	confirmed := make([]domain.Review, 0, len(reviews)+1)
	var pending *domain.Review
	if b.state == StatePending {
		if idx := indexOf(b.reviews, b.pendingID); idx >= 0 {
			pending = &b.reviews[idx]
			confirmed = append(confirmed, *pending)
		}
	}
	for _, review := range reviews {
		// the service may already hold the submission still pending here
		if pending != nil && sameSubmission(*pending, review) {
			continue
		}
		review.Pending = false
		confirmed = append(confirmed, review)
	}
	b.reviews = confirmed
}

// sameSubmission reports whether a server review is the stored copy of a pending one.
func sameSubmission(pending, review domain.Review) bool {
	return pending.UserID != "" &&
		review.UserID == pending.UserID &&
		review.Rating == pending.Rating &&
		strings.TrimSpace(review.Comment) == pending.Comment
}

// Refresh fetches the confirmed reviews from the review service and loads them.
func (c *Coordinator) Refresh(ctx context.Context, productID string) error {
	reviews, err := c.client.List(ctx, productID)
	if err != nil {
		return err
	}
	c.Load(productID, reviews)
	return nil
}

// Submit validates cmd, inserts a pending review at the head of the product's list and sends it to
// the review service in the background. The returned Task resolves exactly once, to Committed or
// RolledBack. Validation failures return an error and leave the board untouched.
func (c *Coordinator) Submit(ctx context.Context, cmd SubmitCommand) (*Task, error) {
	cmd.ProductID = strings.TrimSpace(cmd.ProductID)
	cmd.Token = strings.TrimSpace(cmd.Token)
	cmd.Comment = SanitizeComment(cmd.Comment)

	switch {
	case cmd.ProductID == "":
		return nil, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	case cmd.Token == "":
		return nil, ErrReviewUnauthenticated
	case cmd.Rating < 1 || cmd.Rating > 5:
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrReviewInvalidInput)
	case cmd.Comment == "":
		return nil, fmt.Errorf("%w: comment is required", ErrReviewInvalidInput)
	case len([]rune(cmd.Comment)) > maxCommentLength:
		return nil, fmt.Errorf("%w: comment must be %d characters or fewer", ErrReviewInvalidInput, maxCommentLength)
	}

	local := domain.Review{
		ID:        c.newID(),
		ProductID: cmd.ProductID,
		UserID:    strings.TrimSpace(cmd.UserID),
		UserName:  strings.TrimSpace(cmd.UserName),
		Rating:    cmd.Rating,
		Comment:   cmd.Comment,
		CreatedAt: c.clock(),
		Pending:   true,
	}

	c.mu.Lock()
	b := c.boardLocked(cmd.ProductID)
	if b.state == StatePending {
		c.mu.Unlock()
		return nil, ErrReviewInFlight
	}
	b.reviews = append([]domain.Review{local}, b.reviews...)
	b.state = StatePending
	b.message = ""
	b.pendingID = local.ID
	c.mu.Unlock()

	task := newTask(cmd.ProductID, local.ID)
	go c.send(context.WithoutCancel(ctx), task, cmd, local)
	return task, nil
}

func (c *Coordinator) send(ctx context.Context, task *Task, cmd SubmitCommand, local domain.Review) {
	ctx, span := c.tracer.Start(ctx, "reviews.submit", trace.WithAttributes(
		attribute.String("product.id", cmd.ProductID),
		attribute.String("review.local_id", local.ID),
	))
	defer span.End()

	var (
		confirmed domain.Review
		err       error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &SubmissionError{
					Message: msgUnavailable,
					kind:    ErrServiceUnavailable,
					cause:   fmt.Errorf("review client panic: %v", r),
				}
			}
		}()
		confirmed, err = c.client.Create(ctx, CreateRequest{
			ProductID: cmd.ProductID,
			Rating:    cmd.Rating,
			Comment:   cmd.Comment,
			Token:     cmd.Token,
		})
	}()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rolled back")
		c.rollback(ctx, task, err)
		return
	}
	c.commit(ctx, task, local, confirmed)
}

func (c *Coordinator) commit(ctx context.Context, task *Task, local, confirmed domain.Review) {
	confirmed.Pending = false
	confirmed.ID = firstNonEmpty(confirmed.ID, local.ID)
	confirmed.ProductID = firstNonEmpty(confirmed.ProductID, local.ProductID)
	confirmed.UserID = firstNonEmpty(confirmed.UserID, local.UserID)
	confirmed.UserName = firstNonEmpty(confirmed.UserName, local.UserName)
	if confirmed.Rating == 0 {
		confirmed.Rating = local.Rating
	}
	if strings.TrimSpace(confirmed.Comment) == "" {
		confirmed.Comment = local.Comment
	}
	if confirmed.CreatedAt.IsZero() {
		confirmed.CreatedAt = local.CreatedAt
	}

	c.mu.Lock()
	b := c.boardLocked(task.ProductID)
	placed := false
	reviews := make([]domain.Review, 0, len(b.reviews)+1)
	for _, review := range b.reviews {
		switch {
		case review.ID == task.ReviewID:
			reviews = append(reviews, confirmed)
			placed = true
		case review.ID != confirmed.ID:
			reviews = append(reviews, review)
		}
	}
	if !placed {
		reviews = append([]domain.Review{confirmed}, reviews...)
	}
	b.reviews = reviews
	b.state = StateCommitted
	b.message = ""
	b.pendingID = ""
	c.mu.Unlock()

	c.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("state", StateCommitted.String())))
	c.logger.Info("review committed",
		zap.String("productID", task.ProductID),
		zap.String("reviewID", confirmed.ID),
	)
	task.resolve(Result{State: StateCommitted, Review: confirmed})
	c.publish(ctx, confirmed)
}

func (c *Coordinator) rollback(ctx context.Context, task *Task, err error) {
	message := FailureMessage(err)

	c.mu.Lock()
	b := c.boardLocked(task.ProductID)
	if idx := indexOf(b.reviews, task.ReviewID); idx >= 0 {
		b.reviews = append(b.reviews[:idx], b.reviews[idx+1:]...)
	}
	b.state = StateRolledBack
	b.message = message
	b.pendingID = ""
	c.mu.Unlock()

	c.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("state", StateRolledBack.String())))
	c.logger.Warn("review rolled back",
		zap.String("productID", task.ProductID),
		zap.String("localID", task.ReviewID),
		zap.Error(err),
	)
	task.resolve(Result{State: StateRolledBack, Message: message, Err: err})
}

func (c *Coordinator) publish(ctx context.Context, review domain.Review) {
	if c.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	event := Event{
		Type:       EventCommitted,
		ReviewID:   review.ID,
		ProductID:  review.ProductID,
		UserID:     review.UserID,
		Rating:     review.Rating,
		OccurredAt: c.clock(),
	}
	if err := c.events.PublishReviewEvent(ctx, event); err != nil {
		c.logger.Warn("review event publish failed", zap.String("reviewID", review.ID), zap.Error(err))
	}
}

// Reviews returns the product's list: the pending entry (if any) followed by confirmed entries.
func (c *Coordinator) Reviews(productID string) []domain.Review {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.boards[strings.TrimSpace(productID)]
	if !ok {
		return []domain.Review{}
	}
	out := make([]domain.Review, len(b.reviews))
	copy(out, b.reviews)
	return out
}

// Average returns the mean rating over the current list, or 0 when it is empty.
func (c *Coordinator) Average(productID string) float64 {
	return average(c.Reviews(productID))
}

// State returns the product's submission state and the failure message of the last rollback.
func (c *Coordinator) State(productID string) (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.boards[strings.TrimSpace(productID)]
	if !ok {
		return StateIdle, ""
	}
	return b.state, b.message
}

// Snapshot returns the whole board for productID.
func (c *Coordinator) Snapshot(productID string) Board {
	productID = strings.TrimSpace(productID)
	reviews := c.Reviews(productID)
	state, message := c.State(productID)
	return Board{
		ProductID: productID,
		Reviews:   reviews,
		Average:   average(reviews),
		State:     state,
		Message:   message,
	}
}

func (c *Coordinator) boardLocked(productID string) *board {
	b, ok := c.boards[productID]
	if !ok {
		b = &board{reviews: []domain.Review{}}
		c.boards[productID] = b
	}
	return b
}

func average(reviews []domain.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	var sum int
	for _, review := range reviews {
		sum += review.Rating
	}
	return float64(sum) / float64(len(reviews))
}

func indexOf(reviews []domain.Review, id string) int {
	if id == "" {
		return -1
	}
	for i, review := range reviews {
		if review.ID == id {
			return i
		}
	}
	return -1
}
