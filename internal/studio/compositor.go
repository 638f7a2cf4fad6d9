package studio

import (
	"sync"

	"overlay-studio/internal/geometry"
	"overlay-studio/internal/overlays"
)

// Handle extents in pixels. The delete handle sits top-right and is excluded
// from drag capture; the resize handle sits bottom-right.
const (
	deleteHandleSize = 16
	resizeHandleSize = 12
)

// Rect is a pixel rectangle in viewport coordinates.
type Rect struct {
	X, Y, W, H int
}

// Contains reports whether the point (px, py) lies inside r.
func (r Rect) Contains(px, py int) bool {
	return px >= r.X && px < r.X+r.W && py >= r.Y && py < r.Y+r.H
}

// Target classifies what part of an overlay a pointer position hits.
type Target int

const (
	TargetNone Target = iota
	// TargetBody starts a drag.
	TargetBody
	// TargetDeleteHandle invokes delete; it never starts a gesture.
	TargetDeleteHandle
	// TargetResizeHandle starts a resize.
	TargetResizeHandle
)

// RenderContent tells the rendering surface what to draw inside a region.
// Text overlays carry the literal string; image overlays carry the source
// URL. A source that fails to load is the surface's concern (broken-image
// placeholder), not a store error.
type RenderContent struct {
	Kind     overlays.Kind
	Text     string
	ImageURL string
}

// Region is one overlay's interactive footprint on the video viewport.
type Region struct {
	ID           string
	Frame        Rect
	DeleteHandle Rect
	ResizeHandle Rect
	Content      RenderContent
}

type dragState struct {
	id string
	// pointer offset inside the overlay at grab time, so the overlay does
	// not jump under the cursor.
	grabDX, grabDY int
	pos            geometry.Position
}

type resizeState struct {
	id     string
	origin geometry.Position
	size   geometry.Size
}

// Compositor maps each overlay in the store to an interactive region bound
// to the video viewport and turns completed gestures into store mutations.
// Interim drag and resize frames are local previews only; a gesture issues
// exactly one update, at completion, with clamped geometry.
type Compositor struct {
	mu          sync.Mutex
	store       *Store
	viewport    geometry.Viewport
	interactive bool
	drag        *dragState
	resize      *resizeState
}

// NewCompositor returns a Compositor over the store, confined to viewport.
func NewCompositor(store *Store, viewport geometry.Viewport) *Compositor {
	return &Compositor{store: store, viewport: viewport}
}

// SetViewport updates the confinement bounds (e.g. on player resize).
func (c *Compositor) SetViewport(v geometry.Viewport) {
	c.mu.Lock()
	c.viewport = v
	c.mu.Unlock()
}

// SetInteractive gates pointer interaction on playback readiness. Disabling
// cancels any gesture in progress without committing it.
func (c *Compositor) SetInteractive(on bool) {
	c.mu.Lock()
	c.interactive = on
	if !on {
		c.drag = nil
		c.resize = nil
	}
	c.mu.Unlock()
}

// Interactive reports whether gestures are currently accepted.
func (c *Compositor) Interactive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interactive
}

// Regions returns one region per overlay in z-order (insertion order). An
// overlay mid-gesture is shown at its preview geometry.
func (c *Compositor) Regions() []Region {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := c.store.List()
	out := make([]Region, 0, len(items))
	for _, o := range items {
		pos, size := o.Position, o.Size
		if c.drag != nil && c.drag.id == o.ID {
			pos = c.drag.pos
		}
		if c.resize != nil && c.resize.id == o.ID {
			pos, size = c.resize.origin, c.resize.size
		}
		out = append(out, regionFor(o, pos, size))
	}
	return out
}

// HitTest resolves a pointer position to the topmost overlay target under
// it. The delete handle is reported distinctly so callers route it to
// Delete instead of starting a drag.
func (c *Compositor) HitTest(px, py int) (string, Target) {
	// Topmost wins: walk back to front.
	regions := c.Regions()
	for i := len(regions) - 1; i >= 0; i-- {
		r := regions[i]
		switch {
		case r.DeleteHandle.Contains(px, py):
			return r.ID, TargetDeleteHandle
		case r.ResizeHandle.Contains(px, py):
			return r.ID, TargetResizeHandle
		case r.Frame.Contains(px, py):
			return r.ID, TargetBody
		}
	}
	return "", TargetNone
}

// Delete removes the overlay. It is a plain action, never a gesture, so
// invoking it cannot double as a drag start.
func (c *Compositor) Delete(id string) bool {
	c.mu.Lock()
	if !c.interactive {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()
	return c.store.Remove(id)
}

// BeginDrag starts a drag if (px, py) lands on the overlay's body. Points on
// the delete or resize handles are refused.
func (c *Compositor) BeginDrag(id string, px, py int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.interactive || c.drag != nil || c.resize != nil {
		return false
	}
	o, ok := c.store.Get(id)
	if !ok {
		return false
	}
	r := regionFor(o, o.Position, o.Size)
	if r.DeleteHandle.Contains(px, py) || r.ResizeHandle.Contains(px, py) || !r.Frame.Contains(px, py) {
		return false
	}
	c.drag = &dragState{
		id:     id,
		grabDX: px - o.Position.X,
		grabDY: py - o.Position.Y,
		pos:    o.Position,
	}
	return true
}

// DragTo moves the drag preview to track the pointer. Local-only: no store
// mutation, no persistence traffic.
func (c *Compositor) DragTo(px, py int) (geometry.Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drag == nil {
		return geometry.Position{}, false
	}
	c.drag.pos = geometry.Position{X: px - c.drag.grabDX, Y: py - c.drag.grabDY}
	return c.drag.pos, true
}

// EndDrag completes the gesture: the final position is clamped to the
// viewport and committed with a single store update.
func (c *Compositor) EndDrag() bool {
	c.mu.Lock()
	d := c.drag
	c.drag = nil
	if d == nil {
		c.mu.Unlock()
		return false
	}
	o, ok := c.store.Get(d.id)
	if !ok {
		c.mu.Unlock()
		return false
	}
	pos := geometry.Clamp(d.pos, o.Size, c.viewport)
	c.mu.Unlock()

	return c.store.Update(d.id, overlays.Patch{Position: &pos})
}

// CancelDrag abandons the gesture without committing.
func (c *Compositor) CancelDrag() {
	c.mu.Lock()
	c.drag = nil
	c.mu.Unlock()
}

// BeginResize starts a resize if (px, py) lands on the resize handle.
func (c *Compositor) BeginResize(id string, px, py int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.interactive || c.drag != nil || c.resize != nil {
		return false
	}
	o, ok := c.store.Get(id)
	if !ok {
		return false
	}
	r := regionFor(o, o.Position, o.Size)
	if !r.ResizeHandle.Contains(px, py) {
		return false
	}
	c.resize = &resizeState{id: id, origin: o.Position, size: o.Size}
	return true
}

// ResizeTo stretches the preview toward the pointer, anchored at the
// overlay's top-left corner. Local-only.
func (c *Compositor) ResizeTo(px, py int) (geometry.Size, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resize == nil {
		return geometry.Size{}, false
	}
	c.resize.size = geometry.FloorSize(geometry.Size{
		W: px - c.resize.origin.X,
		H: py - c.resize.origin.Y,
	})
	return c.resize.size, true
}

// EndResize completes the gesture: size is capped to the viewport and
// floored, the position re-clamped for the new extent, and both are
// committed with a single store update.
func (c *Compositor) EndResize() bool {
	c.mu.Lock()
	rs := c.resize
	c.resize = nil
	if rs == nil {
		c.mu.Unlock()
		return false
	}
	size := geometry.ClampSize(rs.size, c.viewport)
	pos := geometry.Clamp(rs.origin, size, c.viewport)
	c.mu.Unlock()

	return c.store.Update(rs.id, overlays.Patch{Position: &pos, Size: &size})
}

// CancelResize abandons the gesture without committing.
func (c *Compositor) CancelResize() {
	c.mu.Lock()
	c.resize = nil
	c.mu.Unlock()
}

// Nudge shifts an overlay by (dx, dy), clamped to the viewport, and commits
// the result. Keyboard-style affordance; one update per call.
func (c *Compositor) Nudge(id string, dx, dy int) bool {
	c.mu.Lock()
	if !c.interactive {
		c.mu.Unlock()
		return false
	}
	o, ok := c.store.Get(id)
	if !ok {
		c.mu.Unlock()
		return false
	}
	pos := geometry.Clamp(geometry.Translate(o.Position, dx, dy), o.Size, c.viewport)
	c.mu.Unlock()

	return c.store.Update(id, overlays.Patch{Position: &pos})
}

func regionFor(o overlays.Overlay, pos geometry.Position, size geometry.Size) Region {
	frame := Rect{X: pos.X, Y: pos.Y, W: size.W, H: size.H}
	content := RenderContent{Kind: o.Kind}
	switch o.Kind {
	case overlays.KindImage:
		content.ImageURL = o.Content
	default:
		content.Text = o.Content
	}
	return Region{
		ID:    o.ID,
		Frame: frame,
		DeleteHandle: Rect{
			X: frame.X + frame.W - deleteHandleSize,
			Y: frame.Y,
			W: deleteHandleSize,
			H: deleteHandleSize,
		},
		ResizeHandle: Rect{
			X: frame.X + frame.W - resizeHandleSize,
			Y: frame.Y + frame.H - resizeHandleSize,
			W: resizeHandleSize,
			H: resizeHandleSize,
		},
		Content: content,
	}
}
