package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"silk-catalog/internal/domain"
)

// BucketRepository loads and saves one bucket as a whole ordered list
type BucketRepository interface {
	Load(ctx context.Context) ([]domain.Product, error)
	Save(ctx context.Context, products []domain.Product) error
}

// DraftRepository holds the single global draft. Load returns nil when
// there is no draft.
type DraftRepository interface {
	Load(ctx context.Context) (domain.Draft, error)
	Save(ctx context.Context, draft domain.Draft) error
	Clear(ctx context.Context) error
}

// Repositories groups the four buckets sharing one DocumentStore
type Repositories struct {
	Live     BucketRepository
	Trash    BucketRepository
	Unfilled BucketRepository
	Draft    DraftRepository
}

// NewRepositories wires the standard documents onto store. Only the live
// bucket keeps a backup of its previous save.
func NewRepositories(store DocumentStore) *Repositories {
	return &Repositories{
		Live:     NewBucketRepository(store, LiveDocument, true),
		Trash:    NewBucketRepository(store, TrashDocument, false),
		Unfilled: NewBucketRepository(store, UnfilledDocument, false),
		Draft:    NewDraftRepository(store, DraftDocument),
	}
}

type bucketRepository struct {
	store  DocumentStore
	name   string
	backup bool
}

// NewBucketRepository stores a bucket as the JSON array document name. With
// backup set, the previous document is copied to name.bak before each save.
func NewBucketRepository(store DocumentStore, name string, backup bool) BucketRepository {
	return &bucketRepository{store: store, name: name, backup: backup}
}

func (r *bucketRepository) Load(ctx context.Context) ([]domain.Product, error) {
	data, err := r.store.Read(ctx, r.name)
	if err != nil {
		return nil, err
	}

	products := []domain.Product{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return products, nil
	}

	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, r.name, err)
	}
	if products == nil {
		products = []domain.Product{}
	}

	return products, nil
}

func (r *bucketRepository) Save(ctx context.Context, products []domain.Product) error {
	if products == nil {
		products = []domain.Product{}
	}

	data, err := json.MarshalIndent(products, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", r.name, err)
	}

	if r.backup {
		previous, err := r.store.Read(ctx, r.name)
		if err != nil {
			return err
		}
		if previous != nil {
			if err := r.store.Write(ctx, r.name+BackupSuffix, previous); err != nil {
				return fmt.Errorf("failed to back up %s: %w", r.name, err)
			}
		}
	}

	return r.store.Write(ctx, r.name, data)
}

type draftRepository struct {
	store DocumentStore
	name  string
}

// NewDraftRepository stores the draft as a single JSON object document;
// an empty object means no draft.
func NewDraftRepository(store DocumentStore, name string) DraftRepository {
	return &draftRepository{store: store, name: name}
}

func (r *draftRepository) Load(ctx context.Context) (domain.Draft, error) {
	data, err := r.store.Read(ctx, r.name)
	if err != nil {
		return nil, err
	}

	// Older deployments initialised every document as an empty list, which
	// ParseDraft treats as no draft.
	draft, err := domain.ParseDraft(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, r.name, err)
	}
	return draft, nil
}

func (r *draftRepository) Save(ctx context.Context, draft domain.Draft) error {
	if len(draft) == 0 {
		return r.Clear(ctx)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, draft, "", "    "); err != nil {
		return fmt.Errorf("failed to encode %s: %w", r.name, err)
	}
	return r.store.Write(ctx, r.name, buf.Bytes())
}

func (r *draftRepository) Clear(ctx context.Context) error {
	return r.store.Write(ctx, r.name, []byte("{}"))
}
