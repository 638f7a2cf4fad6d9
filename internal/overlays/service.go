package overlays

import (
	"context"
	"errors"

	"overlay-studio/internal/geometry"
)

var (
	// ErrInvalidKind is returned for a kind outside {text, image}.
	ErrInvalidKind = errors.New("overlay kind must be text or image")

	// ErrEmptyContent is returned when an overlay has no content.
	ErrEmptyContent = errors.New("overlay content is empty")

	// ErrMissingStream is returned when a draft does not name its stream.
	ErrMissingStream = errors.New("stream id is required")
)

// Service applies validation and normalization rules on top of a Repository.
// Geometry is normalized rather than rejected: negative positions snap to
// zero and sizes get the minimum interactable floor.
type Service struct {
	repo Repository
}

// NewService returns a Service over repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates and normalizes the draft, then persists it.
func (s *Service) Create(ctx context.Context, draft Draft) (Overlay, error) {
	if draft.StreamID == "" {
		return Overlay{}, ErrMissingStream
	}
	if !draft.Kind.Valid() {
		return Overlay{}, ErrInvalidKind
	}
	if draft.Content == "" {
		return Overlay{}, ErrEmptyContent
	}
	draft.Position = normalizePosition(draft.Position)
	draft.Size = geometry.FloorSize(draft.Size)
	return s.repo.Create(ctx, draft)
}

// Update validates and normalizes the patch, then applies it.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (Overlay, error) {
	if patch.Content != nil && *patch.Content == "" {
		return Overlay{}, ErrEmptyContent
	}
	if patch.Position != nil {
		p := normalizePosition(*patch.Position)
		patch.Position = &p
	}
	if patch.Size != nil {
		sz := geometry.FloorSize(*patch.Size)
		patch.Size = &sz
	}
	return s.repo.Update(ctx, id, patch)
}

// Delete removes the overlay; unknown ids are a no-op.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, id)
}

// ListByStream returns the stream's overlays in insertion order.
func (s *Service) ListByStream(ctx context.Context, streamID string) ([]Overlay, error) {
	if streamID == "" {
		return nil, ErrMissingStream
	}
	return s.repo.ListByStream(ctx, streamID)
}

// PurgeStream removes every overlay belonging to the stream.
func (s *Service) PurgeStream(ctx context.Context, streamID string) error {
	return s.repo.PurgeStream(ctx, streamID)
}

func normalizePosition(p geometry.Position) geometry.Position {
	if p.X < 0 {
		p.X = 0
	}
	if p.Y < 0 {
		p.Y = 0
	}
	return p
}
