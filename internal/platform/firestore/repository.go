package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
)

// Document is a decoded snapshot together with its server timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	UpdateTime time.Time
}

// Decoder hydrates the typed entity from a snapshot.
type Decoder[T any] func(snap *firestore.DocumentSnapshot) (T, error)

// Collection provides typed document access for one collection. Every call joins the transaction
// carried by ctx when there is one.
type Collection[T any] struct {
	provider *Provider
	name     string
	decode   Decoder[T]
}

// NewCollection binds a typed helper to the named collection. A nil decoder uses DataTo.
func NewCollection[T any](provider *Provider, name string, decode Decoder[T]) *Collection[T] {
	if decode == nil {
		decode = func(snap *firestore.DocumentSnapshot) (T, error) {
			var target T
			err := snap.DataTo(&target)
			return target, err
		}
	}
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name), decode: decode}
}

// Get loads and decodes the document with the given id.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := c.DocumentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}

	var snap *firestore.DocumentSnapshot
	if tx, ok := TransactionFrom(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}

	value, err := c.decode(snap)
	if err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s/%s: %w", c.name, id, err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: value, UpdateTime: snap.UpdateTime}, nil
}

// Create writes the document only when no document with that id exists. An existing document
// surfaces as a conflict.
func (c *Collection[T]) Create(ctx context.Context, id string, payload any) error {
	ref, err := c.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TransactionFrom(ctx); ok {
		return WrapError(c.op("create"), tx.Create(ref, payload))
	}
	_, err = ref.Create(ctx, payload)
	return WrapError(c.op("create"), err)
}

// Set overwrites the document.
func (c *Collection[T]) Set(ctx context.Context, id string, payload any, opts ...firestore.SetOption) error {
	ref, err := c.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TransactionFrom(ctx); ok {
		return WrapError(c.op("set"), tx.Set(ref, payload, opts...))
	}
	_, err = ref.Set(ctx, payload, opts...)
	return WrapError(c.op("set"), err)
}

// Update applies field updates subject to optional preconditions.
func (c *Collection[T]) Update(ctx context.Context, id string, updates []firestore.Update, preconds ...firestore.Precondition) error {
	ref, err := c.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TransactionFrom(ctx); ok {
		return WrapError(c.op("update"), tx.Update(ref, updates, preconds...))
	}
	_, err = ref.Update(ctx, updates, preconds...)
	return WrapError(c.op("update"), err)
}

// DocumentRef exposes the reference for callers that drive a transaction directly.
func (c *Collection[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if c == nil || c.provider == nil {
		return nil, WrapError("firestore.collection", errors.New("firestore: provider is nil"))
	}
	if c.name == "" {
		return nil, WrapError("firestore.collection", errors.New("firestore: collection name is required"))
	}
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("document"), errors.New("firestore: document id is required"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name).Doc(id), nil
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

func (c *Collection[T]) op(action string) string {
	return fmt.Sprintf("%s.%s", c.name, action)
}
