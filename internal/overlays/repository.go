package overlays

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the requested overlay id does not exist.
var ErrNotFound = errors.New("overlay not found")

// Repository defines the concurrency-safe contract for accessing and
// mutating overlay state.
type Repository interface {
	// Create assigns an id to the draft and persists the resulting overlay.
	Create(ctx context.Context, draft Draft) (Overlay, error)

	// Get returns the overlay with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (Overlay, error)

	// Update merges the patch into the stored overlay field by field and
	// persists the result. Returns ErrNotFound for an unknown id.
	Update(ctx context.Context, id string, patch Patch) (Overlay, error)

	// Delete removes the overlay. Deleting an unknown id is a no-op so the
	// operation stays idempotent; deleted reports whether anything existed.
	Delete(ctx context.Context, id string) (deleted bool, err error)

	// ListByStream returns the stream's overlays in insertion order.
	ListByStream(ctx context.Context, streamID string) ([]Overlay, error)

	// PurgeStream removes every overlay belonging to the stream.
	PurgeStream(ctx context.Context, streamID string) error
}

// StoreRepository is a concurrency-safe Repository over a Store.
type StoreRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewRepository constructs a repository with a default in-memory store.
func NewRepository() *StoreRepository {
	return NewRepositoryWithStore(NewInMemoryStore())
}

// NewRepositoryWithStore constructs a repository that uses the given Store.
func NewRepositoryWithStore(store Store) *StoreRepository {
	return &StoreRepository{store: store}
}

// Create implements Repository.Create.
func (r *StoreRepository) Create(ctx context.Context, draft Draft) (Overlay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o := Overlay{
		ID:       uuid.NewString(),
		StreamID: draft.StreamID,
		Kind:     draft.Kind,
		Content:  draft.Content,
		Position: draft.Position,
		Size:     draft.Size,
	}
	if err := r.store.Put(ctx, o); err != nil {
		return Overlay{}, err
	}
	return o, nil
}

// Get implements Repository.Get.
func (r *StoreRepository) Get(ctx context.Context, id string) (Overlay, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok, err := r.store.Get(ctx, id)
	if err != nil {
		return Overlay{}, err
	}
	if !ok {
		return Overlay{}, ErrNotFound
	}
	return o, nil
}

// Update implements Repository.Update.
func (r *StoreRepository) Update(ctx context.Context, id string, patch Patch) (Overlay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok, err := r.store.Get(ctx, id)
	if err != nil {
		return Overlay{}, err
	}
	if !ok {
		return Overlay{}, ErrNotFound
	}

	patch.Apply(&o)
	if err := r.store.Put(ctx, o); err != nil {
		return Overlay{}, err
	}
	return o, nil
}

// Delete implements Repository.Delete.
func (r *StoreRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.store.Delete(ctx, id)
}

// ListByStream implements Repository.ListByStream.
func (r *StoreRepository) ListByStream(ctx context.Context, streamID string) ([]Overlay, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.store.ListByStream(ctx, streamID)
}

// PurgeStream implements Repository.PurgeStream.
func (r *StoreRepository) PurgeStream(ctx context.Context, streamID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.store.DeleteStream(ctx, streamID)
}
