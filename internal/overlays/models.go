package overlays

import (
	"overlay-studio/internal/geometry"
)

// Kind discriminates how an overlay's content is interpreted.
type Kind string

const (
	// KindText renders the content string literally.
	KindText Kind = "text"
	// KindImage interprets the content as an image source URL.
	KindImage Kind = "image"
)

// Valid reports whether k is a kind the rendering layer recognizes.
func (k Kind) Valid() bool {
	return k == KindText || k == KindImage
}

// Overlay is the wire representation of a positioned visual element
// composited on top of a stream's video viewport. Field names follow the
// persistence API contract.
type Overlay struct {
	ID       string            `json:"_id"`
	StreamID string            `json:"stream_id,omitempty"`
	Kind     Kind              `json:"type"`
	Content  string            `json:"content"`
	Position geometry.Position `json:"position"`
	Size     geometry.Size     `json:"size"`
}

// Draft is the payload for creating an overlay; the server assigns the id.
type Draft struct {
	StreamID string            `json:"stream_id"`
	Kind     Kind              `json:"type"`
	Content  string            `json:"content"`
	Position geometry.Position `json:"position"`
	Size     geometry.Size     `json:"size"`
}

// Patch is a partial overlay mutation. Nil fields are left untouched, so a
// patch replaces individual fields rather than the whole object.
type Patch struct {
	Content  *string            `json:"content,omitempty"`
	Position *geometry.Position `json:"position,omitempty"`
	Size     *geometry.Size     `json:"size,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Content == nil && p.Position == nil && p.Size == nil
}

// Apply merges the patch into o field by field.
func (p Patch) Apply(o *Overlay) {
	if p.Content != nil {
		o.Content = *p.Content
	}
	if p.Position != nil {
		o.Position = *p.Position
	}
	if p.Size != nil {
		o.Size = *p.Size
	}
}
