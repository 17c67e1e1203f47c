package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/storefront/internal/domain"
)

func price(v int64) *int64 { return &v }

func shirt() domain.Product {
	return domain.Product{ID: "p1", Name: "Shirt", Price: price(100)}
}

type failingStore struct {
	*MemoryStore
	failGet map[string]bool
	failPut bool
	puts    []string
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failGet[key] {
		return nil, errors.New("backend down")
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *failingStore) Put(ctx context.Context, key string, value []byte) error {
	f.puts = append(f.puts, key)
	if f.failPut {
		return errors.New("backend down")
	}
	return f.MemoryStore.Put(ctx, key, value)
}

func TestOpenUsesNeutralValuesForMissingSlots(t *testing.T) {
	s, err := Open(context.Background(), Deps{ID: "abc", Store: NewMemoryStore()})
	require.NoError(t, err)

	assert.Nil(t, s.User())
	assert.Empty(t, s.Token())
	assert.False(t, s.Authenticated())
	assert.Empty(t, s.Cart().Items())
	assert.Zero(t, s.Cart().TotalPrice())
	assert.Zero(t, s.Wishlist().Len())
}

func TestOpenRecoversFromCorruptCartSlot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, SlotKey("sf", "abc", SlotCart), []byte("{not json")))
	require.NoError(t, store.Put(ctx, SlotKey("sf", "abc", SlotToken), []byte(`"tok"`)))

	s, err := Open(ctx, Deps{ID: "abc", Store: store, Namespace: "sf"})
	require.NoError(t, err)

	assert.Empty(t, s.Cart().Items())
	assert.Equal(t, 0, s.Cart().TotalItems())
	assert.Equal(t, "tok", s.Token(), "other slots still load")
}

func TestOpenRecoversFromBackendErrors(t *testing.T) {
	store := &failingStore{
		MemoryStore: NewMemoryStore(),
		failGet:     map[string]bool{SlotKey("", "abc", SlotWishlist): true},
	}
	s, err := Open(context.Background(), Deps{ID: "abc", Store: store})
	require.NoError(t, err)
	assert.Zero(t, s.Wishlist().Len())
}

func TestOpenRejectsInvalidDeps(t *testing.T) {
	_, err := Open(context.Background(), Deps{ID: "", Store: NewMemoryStore()})
	assert.ErrorIs(t, err, ErrInvalidSessionID)

	_, err = Open(context.Background(), Deps{ID: "a/b", Store: NewMemoryStore()})
	assert.ErrorIs(t, err, ErrInvalidSessionID)

	_, err = Open(context.Background(), Deps{ID: "abc"})
	assert.Error(t, err)
}

func TestCartMutationsPersistOnlyTheCartSlot(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: NewMemoryStore()}
	s, err := Open(ctx, Deps{ID: "abc", Store: store, Namespace: "sf"})
	require.NoError(t, err)

	require.NoError(t, s.Cart().AddItem(shirt(), 2, "M", "Red", "inv1"))
	assert.Equal(t, []string{"sf:abc:cart"}, store.puts)

	reopened, err := Open(ctx, Deps{ID: "abc", Store: store, Namespace: "sf"})
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Cart().TotalItems())
	assert.Equal(t, int64(200), reopened.Cart().TotalPrice())
	line, ok := reopened.Cart().Find(domain.LineKey{ProductID: "p1", Size: "M", Color: "Red"})
	require.True(t, ok)
	assert.Equal(t, "inv1", line.InventoryID)
}

func TestPersistedTotalsAreRecomputed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	raw := `{"items":[{"product":{"_id":"p1","price":100},"size":"M","color":"Red","quantity":3}],"totalItems":99,"totalPrice":1}`
	require.NoError(t, store.Put(ctx, SlotKey("", "abc", SlotCart), []byte(raw)))

	s, err := Open(ctx, Deps{ID: "abc", Store: store})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Cart().TotalItems())
	assert.Equal(t, int64(300), s.Cart().TotalPrice())
	assert.Equal(t, "p1", s.Cart().Items()[0].Product.ID)
}

func TestWriteFailuresAreSwallowed(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), failPut: true}
	s, err := Open(context.Background(), Deps{ID: "abc", Store: store})
	require.NoError(t, err)

	assert.True(t, s.Wishlist().Add(shirt()))
	assert.True(t, s.Wishlist().Contains("p1"), "in-memory state survives a failed write")
}

func TestLogoutResetsAllSlots(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s, err := Open(ctx, Deps{ID: "abc", Store: store})
	require.NoError(t, err)

	s.SetUser(&domain.UserProfile{ID: "u1", DisplayName: "Ada"})
	s.SetToken("tok")
	require.NoError(t, s.Cart().AddItem(shirt(), 1, "M", "Red", ""))
	s.Wishlist().Add(shirt())

	s.Logout()

	reopened, err := Open(ctx, Deps{ID: "abc", Store: store})
	require.NoError(t, err)
	assert.Nil(t, reopened.User())
	assert.Empty(t, reopened.Token())
	assert.Empty(t, reopened.Cart().Items())
	assert.Zero(t, reopened.Wishlist().Len())
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStore(client, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Get(ctx, "sf:abc:cart")
	assert.ErrorIs(t, err, ErrSlotNotFound)

	require.NoError(t, store.Put(ctx, "sf:abc:cart", []byte(`{"items":[]}`)))
	got, err := store.Get(ctx, "sf:abc:cart")
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(got))
	assert.Equal(t, time.Hour, mr.TTL("sf:abc:cart"))

	require.NoError(t, store.Delete(ctx, "sf:abc:cart"))
	assert.False(t, mr.Exists("sf:abc:cart"))
}

func TestRedisStoreBacksSession(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewRedisStore(client, 0)
	require.NoError(t, err)

	ctx := context.Background()
	s, err := Open(ctx, Deps{ID: "abc", Store: store, Namespace: "storefront"})
	require.NoError(t, err)
	s.Wishlist().Add(shirt())

	raw, err := mr.Get("storefront:abc:wishlist")
	require.NoError(t, err)
	assert.Contains(t, raw, `"p1"`)

	require.NoError(t, mr.Set("storefront:abc:cart", "garbage"))
	reopened, err := Open(ctx, Deps{ID: "abc", Store: store, Namespace: "storefront"})
	require.NoError(t, err)
	assert.True(t, reopened.Wishlist().Contains("p1"))
	assert.Empty(t, reopened.Cart().Items())
}

func TestManagerReusesAndSerialisesSessions(t *testing.T) {
	m, err := NewManager(ManagerDeps{Store: NewMemoryStore()})
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.With(ctx, "abc", func(s *Session) error {
				return s.Cart().AddItem(shirt(), 1, "M", "Red", "")
			})
		}()
	}
	wg.Wait()

	var total int
	require.NoError(t, m.With(ctx, "abc", func(s *Session) error {
		total = s.Cart().TotalItems()
		return nil
	}))
	assert.Equal(t, 20, total)
	assert.Equal(t, 1, m.Len())
}

func TestManagerLogoutDropsSession(t *testing.T) {
	store := NewMemoryStore()
	m, err := NewManager(ManagerDeps{Store: store})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.With(ctx, "abc", func(s *Session) error {
		s.SetToken("tok")
		return s.Cart().AddItem(shirt(), 1, "M", "Red", "")
	}))
	require.NoError(t, m.Logout(ctx, "abc"))
	assert.Equal(t, 0, m.Len())

	require.NoError(t, m.With(ctx, "abc", func(s *Session) error {
		assert.Empty(t, s.Token())
		assert.Empty(t, s.Cart().Items())
		return nil
	}))
}

func TestManagerSweepReleasesIdleSessions(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := NewManager(ManagerDeps{Store: NewMemoryStore(), Clock: func() time.Time { return now }})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.With(ctx, "old", func(*Session) error { return nil }))
	now = now.Add(time.Hour)
	require.NoError(t, m.With(ctx, "new", func(*Session) error { return nil }))

	assert.Equal(t, 1, m.Sweep(30*time.Minute))
	assert.Equal(t, 1, m.Len())
}

func TestManagerRejectsInvalidID(t *testing.T) {
	m, err := NewManager(ManagerDeps{Store: NewMemoryStore()})
	require.NoError(t, err)
	err = m.With(context.Background(), " ", func(*Session) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidSessionID)

	_, err = NewManager(ManagerDeps{})
	assert.Error(t, err)
}
