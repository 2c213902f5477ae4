// Package core provides the value types and error taxonomy shared by geoprobe packages.
package core

import "fmt"

// PagePoint is a document-relative coordinate in the element's own frame.
// It does not depend on the scroll position of the viewport.
type PagePoint struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ViewportPoint is a coordinate relative to the outermost browser viewport,
// measured after the element has been scrolled into view.
type ViewportPoint struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Offset is a translation between two nested coordinate spaces.
type Offset struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

// Size is the rendered bounding box of an element. Zero in both dimensions
// means the element is not rendered; that is a valid result.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect represents element position and size as reported by the remote end.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// String formats the point as (x,y).
func (p PagePoint) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// String formats the point as (x,y).
func (p ViewportPoint) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Translate moves the point by the given offset.
func (p ViewportPoint) Translate(o Offset) ViewportPoint {
	return ViewportPoint{X: p.X + o.DX, Y: p.Y + o.DY}
}

// IsZero reports whether the element has no rendered area.
func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

// String formats the size as WxH.
func (s Size) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// Location returns the top-left corner of the rect.
func (r Rect) Location() PagePoint {
	return PagePoint{X: r.X, Y: r.Y}
}

// Size returns the dimensions of the rect.
func (r Rect) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

// ComposeOffsets reduces an ordered list of frame offsets by summation.
// The order of the list does not change the result; it is kept so callers
// can report the frame chain in diagnostics.
func ComposeOffsets(offsets []Offset) Offset {
	var total Offset
	for _, o := range offsets {
		total.DX += o.DX
		total.DY += o.DY
	}
	return total
}
