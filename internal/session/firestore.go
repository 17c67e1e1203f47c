package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

type clientProvider interface {
	Client(ctx context.Context) (*firestore.Client, error)
}

type slotDocument struct {
	Data      []byte    `firestore:"data"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// FirestoreStore keeps one document per slot in a single collection. Slot keys are used as document
// IDs, so they must not contain '/'.
type FirestoreStore struct {
	provider   clientProvider
	collection string
	clock      func() time.Time
}

// NewFirestoreStore builds a store over the provider's client.
func NewFirestoreStore(provider clientProvider, collection string) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("session: firestore provider is required")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, errors.New("session: firestore collection is required")
	}
	return &FirestoreStore{
		provider:   provider,
		collection: collection,
		clock:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Get implements SlotStore.
func (s *FirestoreStore) Get(ctx context.Context, key string) ([]byte, error) {
	doc, err := s.doc(ctx, key)
	if err != nil {
		return nil, err
	}
	snap, err := doc.Get(ctx)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return nil, ErrSlotNotFound
		}
		return nil, pfirestore.WrapError("session.slots.get", err)
	}
	var stored slotDocument
	if err := snap.DataTo(&stored); err != nil {
		return nil, pfirestore.WrapError("session.slots.decode", err)
	}
	return stored.Data, nil
}

// Put implements SlotStore.
func (s *FirestoreStore) Put(ctx context.Context, key string, value []byte) error {
	doc, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	if _, err := doc.Set(ctx, slotDocument{Data: value, UpdatedAt: s.clock()}); err != nil {
		return pfirestore.WrapError("session.slots.put", err)
	}
	return nil
}

// Delete implements SlotStore.
func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	doc, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	if _, err := doc.Delete(ctx); err != nil && !pfirestore.IsNotFound(err) {
		return pfirestore.WrapError("session.slots.delete", err)
	}
	return nil
}

func (s *FirestoreStore) doc(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	if strings.Contains(key, "/") || strings.TrimSpace(key) == "" {
		return nil, errors.New("session: invalid firestore slot key")
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("session.slots.client", err)
	}
	return client.Collection(s.collection).Doc(key), nil
}
