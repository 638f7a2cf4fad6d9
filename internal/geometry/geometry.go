// Package geometry holds the pure value types and arithmetic for overlay
// placement. All values are integer pixels; that is also the precision
// persisted by the overlay API.
package geometry

// Position is a pixel offset from the top-left corner of the video viewport.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a pixel extent.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// Viewport is the renderable area overlays are confined to.
type Viewport struct {
	W int `json:"w"`
	H int `json:"h"`
}

// MinSize is the smallest extent an overlay may take and still remain
// pointer-interactable.
var MinSize = Size{W: 40, H: 24}

// Clamp constrains p so that an overlay of size s lies fully inside v:
// X in [0, v.W-s.W] and Y in [0, v.H-s.H]. If s exceeds the viewport on an
// axis, that coordinate clamps to 0.
func Clamp(p Position, s Size, v Viewport) Position {
	return Position{
		X: clampAxis(p.X, v.W-s.W),
		Y: clampAxis(p.Y, v.H-s.H),
	}
}

// ClampSize applies the MinSize floor to s and caps it to the viewport.
// The floor wins when the viewport is smaller than MinSize.
func ClampSize(s Size, v Viewport) Size {
	if s.W > v.W {
		s.W = v.W
	}
	if s.H > v.H {
		s.H = v.H
	}
	return FloorSize(s)
}

// FloorSize applies the MinSize floor to s.
func FloorSize(s Size) Size {
	if s.W < MinSize.W {
		s.W = MinSize.W
	}
	if s.H < MinSize.H {
		s.H = MinSize.H
	}
	return s
}

// Translate returns p shifted elementwise by (dx, dy). It does not clamp;
// callers clamp the result against their viewport.
func Translate(p Position, dx, dy int) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

func clampAxis(c, max int) int {
	if max < 0 {
		return 0
	}
	if c < 0 {
		return 0
	}
	if c > max {
		return max
	}
	return c
}
