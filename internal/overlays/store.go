package overlays

import "context"

// Store is the persistence abstraction for overlays. Implementations can be
// in-memory or backed by Redis; the Repository uses Store for all reads and
// writes and callers of Repository do not need to know which Store is used.
// Listing preserves insertion order per stream, which the client relies on
// for stable z-ordering.
type Store interface {
	Get(ctx context.Context, id string) (Overlay, bool, error)
	Put(ctx context.Context, o Overlay) error
	Delete(ctx context.Context, id string) (bool, error)
	ListByStream(ctx context.Context, streamID string) ([]Overlay, error)
	DeleteStream(ctx context.Context, streamID string) error
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	items map[string]Overlay
	// order holds overlay ids per stream in insertion order.
	order map[string][]string
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		items: make(map[string]Overlay),
		order: make(map[string][]string),
	}
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(_ context.Context, id string) (Overlay, bool, error) {
	o, ok := s.items[id]
	return o, ok, nil
}

// Put implements Store.Put.
func (s *InMemoryStore) Put(_ context.Context, o Overlay) error {
	if _, exists := s.items[o.ID]; !exists {
		s.order[o.StreamID] = append(s.order[o.StreamID], o.ID)
	}
	s.items[o.ID] = o
	return nil
}

// Delete implements Store.Delete.
func (s *InMemoryStore) Delete(_ context.Context, id string) (bool, error) {
	o, ok := s.items[id]
	if !ok {
		return false, nil
	}
	delete(s.items, id)
	s.order[o.StreamID] = removeID(s.order[o.StreamID], id)
	return true, nil
}

// ListByStream implements Store.ListByStream.
func (s *InMemoryStore) ListByStream(_ context.Context, streamID string) ([]Overlay, error) {
	ids := s.order[streamID]
	out := make([]Overlay, 0, len(ids))
	for _, id := range ids {
		if o, ok := s.items[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// DeleteStream implements Store.DeleteStream.
func (s *InMemoryStore) DeleteStream(_ context.Context, streamID string) error {
	for _, id := range s.order[streamID] {
		delete(s.items, id)
	}
	delete(s.order, streamID)
	return nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
