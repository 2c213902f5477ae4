package webdriver

import (
	"strconv"
	"strings"
)

// FrameRef identifies one frame hop from its parent document.
type FrameRef struct {
	ElementID string // remote id of the frame element, empty for index hops
	Index     int    // frame index, -1 for element hops
}

// Key is the identity used to compare frame paths.
func (f FrameRef) Key() string {
	if f.ElementID != "" {
		return "element:" + f.ElementID
	}
	return "index:" + strconv.Itoa(f.Index)
}

// FrameContext is an immutable snapshot of the addressed frame: the
// navigation epoch it belongs to and the frame path from the root document.
// An empty path is the root document.
type FrameContext struct {
	Epoch uint64
	Path  []FrameRef
}

// Depth is the number of frames between the root document and this context.
func (fc FrameContext) Depth() int {
	return len(fc.Path)
}

// String renders the frame path for diagnostics, e.g. "root/element:abc/index:0".
func (fc FrameContext) String() string {
	parts := make([]string, 0, len(fc.Path)+1)
	parts = append(parts, "root")
	for _, f := range fc.Path {
		parts = append(parts, f.Key())
	}
	return strings.Join(parts, "/")
}

// SameAs reports whether both snapshots address the same frame of the same document.
func (fc FrameContext) SameAs(other FrameContext) bool {
	if fc.Epoch != other.Epoch || len(fc.Path) != len(other.Path) {
		return false
	}
	for i := range fc.Path {
		if fc.Path[i].Key() != other.Path[i].Key() {
			return false
		}
	}
	return true
}

// FrameTracker maintains the frame nesting a session currently addresses.
// It is owned by a single Session and relies on the session's sequential use.
type FrameTracker struct {
	epoch uint64
	path  []FrameRef
}

// NewFrameTracker returns a tracker addressing the root document.
func NewFrameTracker() *FrameTracker {
	return &FrameTracker{}
}

// Current returns a snapshot of the live context.
func (t *FrameTracker) Current() FrameContext {
	path := make([]FrameRef, len(t.path))
	copy(path, t.path)
	return FrameContext{Epoch: t.epoch, Path: path}
}

// Push records a switch into a child frame.
func (t *FrameTracker) Push(ref FrameRef) {
	t.path = append(t.path, ref)
}

// Pop records a switch to the parent frame. At the root it does nothing,
// matching the remote end.
func (t *FrameTracker) Pop() {
	if len(t.path) > 0 {
		t.path = t.path[:len(t.path)-1]
	}
}

// Reset addresses the root document without invalidating handles created there.
func (t *FrameTracker) Reset() {
	t.path = nil
}

// OnNavigate resets to the root document and starts a new epoch, which makes
// every handle created before the navigation stale.
func (t *FrameTracker) OnNavigate() {
	t.path = nil
	t.epoch++
}
