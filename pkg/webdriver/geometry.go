package webdriver

import (
	"context"
	"encoding/json"
	"math"

	"github.com/devicelab-dev/geoprobe/pkg/core"
)

// scrollIntoViewScript scrolls the element (and every ancestor frame) into
// view, then reports its client rect in its own frame's viewport plus the
// offset of each enclosing frame's content box (border and padding
// included) in its parent's viewport, innermost frame first. Cross-origin
// ancestors end the chain.
const scrollIntoViewScript = `var el = arguments[0];
el.scrollIntoView(true);
var r = el.getBoundingClientRect();
var frames = [];
var w = el.ownerDocument.defaultView;
while (w) {
  var fe = null;
  try { fe = w.frameElement; } catch (e) { fe = null; }
  if (!fe) { break; }
  var fr = fe.getBoundingClientRect();
  var cs = fe.ownerDocument.defaultView.getComputedStyle(fe);
  frames.push({
    dx: fr.left + fe.clientLeft + (parseFloat(cs.paddingLeft) || 0),
    dy: fr.top + fe.clientTop + (parseFloat(cs.paddingTop) || 0)
  });
  w = w.parent;
}
return {x: r.left, y: r.top, width: r.width, height: r.height, frames: frames};`

type wireRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type wireOffset struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type inViewResult struct {
	wireRect
	Frames []wireOffset `json:"frames"`
}

func decodeRect(raw json.RawMessage) (wireRect, error) {
	var r wireRect
	if err := json.Unmarshal(raw, &r); err != nil {
		return r, core.ErrTransport.WithMessage("invalid rect response").WithCause(err)
	}
	return r, nil
}

func round(f float64) int {
	return int(math.Round(f))
}

// Geometry issues element geometry queries for one session. Every query
// resolves the element handle first and either returns a complete value or
// fails; there are no partial results.
type Geometry struct {
	session *Session
}

// Rect returns the element's rect as reported by the remote end: x/y in the
// document coordinates of the element's own frame, width/height of the
// rendered bounding box.
func (g *Geometry) Rect(ctx context.Context, el *Element) (core.Rect, error) {
	s := g.session
	id, err := s.resolve(el)
	if err != nil {
		return core.Rect{}, err
	}
	raw, err := s.client.get(ctx, s.client.elementPath(id)+"/rect")
	if err != nil {
		return core.Rect{}, s.elementError(err, el)
	}
	r, err := decodeRect(raw)
	if err != nil {
		return core.Rect{}, s.elementError(err, el)
	}
	return core.Rect{
		X:      round(r.X),
		Y:      round(r.Y),
		Width:  int(r.Width),
		Height: int(r.Height),
	}, nil
}

// Location returns the element's position relative to the document of its
// own frame, independent of scrolling. For elements inside iframes this is
// relative to the innermost frame's document, not the top-level page.
// Non-rendered elements yield a valid coordinate, commonly (0,0).
func (g *Geometry) Location(ctx context.Context, el *Element) (core.PagePoint, error) {
	r, err := g.Rect(ctx, el)
	if err != nil {
		return core.PagePoint{}, err
	}
	return r.Location(), nil
}

// Size returns the rendered bounding-box dimensions, zero for non-rendered
// elements.
func (g *Geometry) Size(ctx context.Context, el *Element) (core.Size, error) {
	r, err := g.Rect(ctx, el)
	if err != nil {
		return core.Size{}, err
	}
	if r.Width < 0 || r.Height < 0 {
		return core.Size{}, core.ErrTransport.WithMessage("remote end reported a negative size").WithDetails(map[string]interface{}{
			"handle": el.id,
			"size":   r.Size().String(),
		})
	}
	return r.Size(), nil
}

// LocationInView scrolls the element's frame chain so the element becomes
// visible and returns its position relative to the outermost viewport. The
// frame-relative position is translated by the sum of the enclosing frames'
// offsets. A zero-area element reports (0,0).
func (g *Geometry) LocationInView(ctx context.Context, el *Element) (core.ViewportPoint, error) {
	p, _, err := g.locationInView(ctx, el)
	return p, err
}

// FrameOffsets scrolls the element into view like LocationInView and
// returns the ordered frame offsets used for composition, innermost first.
func (g *Geometry) FrameOffsets(ctx context.Context, el *Element) ([]core.Offset, error) {
	_, offsets, err := g.locationInView(ctx, el)
	return offsets, err
}

func (g *Geometry) locationInView(ctx context.Context, el *Element) (core.ViewportPoint, []core.Offset, error) {
	s := g.session
	raw, err := s.ExecuteScript(ctx, scrollIntoViewScript, el)
	if err != nil {
		return core.ViewportPoint{}, nil, s.elementError(err, el)
	}

	var res inViewResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return core.ViewportPoint{}, nil, s.elementError(
			core.ErrTransport.WithMessage("invalid scroll-into-view response").WithCause(err), el)
	}

	offsets := make([]core.Offset, len(res.Frames))
	for i, f := range res.Frames {
		offsets[i] = core.Offset{DX: round(f.DX), DY: round(f.DY)}
	}

	size := core.Size{Width: int(res.Width), Height: int(res.Height)}
	if size.IsZero() {
		return core.ViewportPoint{}, offsets, nil
	}

	p := core.ViewportPoint{X: round(res.X), Y: round(res.Y)}
	return p.Translate(core.ComposeOffsets(offsets)), offsets, nil
}
