package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/cart"
	"github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/wishlist"
)

const defaultWriteTimeout = 3 * time.Second

// ErrInvalidSessionID indicates a blank or malformed session identifier.
var ErrInvalidSessionID = errors.New("session: invalid session id")

// Deps bundles what Open needs.
type Deps struct {
	ID           string
	Store        SlotStore
	Namespace    string
	Logger       *zap.Logger
	WriteTimeout time.Duration
}

// Session is one visitor's state. It is not safe for concurrent use; Manager serialises access.
type Session struct {
	id           string
	namespace    string
	store        SlotStore
	logger       *zap.Logger
	writeTimeout time.Duration

	user     *domain.UserProfile
	token    string
	cart     *cart.Store
	wishlist *wishlist.Store
}

type sessionMetrics struct {
	loadFallbacks metric.Int64Counter
	writeFailures metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metrics     sessionMetrics
)

func instruments(logger *zap.Logger) sessionMetrics {
	metricsOnce.Do(func() {
		metrics = sessionMetrics{
			loadFallbacks: observability.Int64Counter(logger, "storefront.session.load_fallbacks",
				"Session slots that fell back to their neutral value"),
			writeFailures: observability.Int64Counter(logger, "storefront.session.write_failures",
				"Session slot writes that failed"),
		}
	})
	return metrics
}

// ValidID reports whether id is usable as a session identifier.
func ValidID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 128 {
		return false
	}
	return !strings.ContainsAny(id, "/: \t\r\n")
}

// Open loads every slot for deps.ID. Absent, unreadable or corrupt slots yield their neutral value
// (no user, empty token, empty cart, empty wishlist); those failures are logged, never returned.
// The only errors are for unusable deps.
func Open(ctx context.Context, deps Deps) (*Session, error) {
	if !ValidID(deps.ID) {
		return nil, ErrInvalidSessionID
	}
	if deps.Store == nil {
		return nil, errors.New("session: slot store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	s := &Session{
		id:           deps.ID,
		namespace:    deps.Namespace,
		store:        deps.Store,
		logger:       logger.With(zap.String("sessionID", deps.ID)),
		writeTimeout: timeout,
	}

	var user domain.UserProfile
	if s.load(ctx, SlotUser, &user) && strings.TrimSpace(user.ID) != "" {
		s.user = &user
	}

	var token string
	if s.load(ctx, SlotToken, &token) {
		s.token = strings.TrimSpace(token)
	}

	var savedCart domain.Cart
	if !s.load(ctx, SlotCart, &savedCart) {
		savedCart = domain.Cart{}
	}
	s.cart = cart.Restore(savedCart, cart.WithChangeHook(func(snapshot domain.Cart) {
		s.persist(SlotCart, snapshot)
	}))

	var savedWishlist []domain.WishlistEntry
	if !s.load(ctx, SlotWishlist, &savedWishlist) {
		savedWishlist = nil
	}
	s.wishlist = wishlist.Restore(savedWishlist, wishlist.WithChangeHook(func(entries []domain.WishlistEntry) {
		s.persist(SlotWishlist, entries)
	}))

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// User returns a copy of the signed-in profile, or nil.
func (s *Session) User() *domain.UserProfile {
	if s.user == nil {
		return nil
	}
	user := *s.user
	return &user
}

// Token returns the bearer token, or "".
func (s *Session) Token() string { return s.token }

// Authenticated reports whether a token is present.
func (s *Session) Authenticated() bool { return s.token != "" }

// Cart returns the session cart. Mutations persist the cart slot.
func (s *Session) Cart() *cart.Store { return s.cart }

// Wishlist returns the session wishlist. Mutations persist the wishlist slot.
func (s *Session) Wishlist() *wishlist.Store { return s.wishlist }

// SetUser replaces the profile and persists the user slot. A nil profile clears it.
func (s *Session) SetUser(profile *domain.UserProfile) {
	if profile == nil {
		s.user = nil
		s.persist(SlotUser, nil)
		return
	}
	user := *profile
	s.user = &user
	s.persist(SlotUser, user)
}

// SetToken replaces the token and persists the token slot.
func (s *Session) SetToken(token string) {
	s.token = strings.TrimSpace(token)
	s.persist(SlotToken, s.token)
}

// Logout resets all four slots to their neutral values and writes each of them.
func (s *Session) Logout() {
	s.SetUser(nil)
	s.SetToken("")
	s.cart.Clear()
	s.wishlist.Clear()
}

func (s *Session) key(slot string) string {
	return SlotKey(s.namespace, s.id, slot)
}

func (s *Session) load(ctx context.Context, slot string, out any) bool {
	data, err := s.store.Get(ctx, s.key(slot))
	if errors.Is(err, ErrSlotNotFound) {
		return false
	}
	if err != nil {
		s.fallback(ctx, slot, "read", err)
		return false
	}
	if len(data) == 0 {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.fallback(ctx, slot, "decode", err)
		return false
	}
	return true
}

func (s *Session) fallback(ctx context.Context, slot, reason string, err error) {
	s.logger.Warn("session: slot unavailable, using default",
		zap.String("slot", slot),
		zap.String("reason", reason),
		zap.Error(err),
	)
	instruments(s.logger).loadFallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("slot", slot),
		attribute.String("reason", reason),
	))
}

// persist writes one slot. Failures are logged and counted; the in-memory state stays authoritative.
func (s *Session) persist(slot string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		s.writeFailed(slot, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	if err := s.store.Put(ctx, s.key(slot), data); err != nil {
		s.writeFailed(slot, err)
	}
}

func (s *Session) writeFailed(slot string, err error) {
	s.logger.Warn("session: slot write failed", zap.String("slot", slot), zap.Error(err))
	instruments(s.logger).writeFailures.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("slot", slot),
	))
}
