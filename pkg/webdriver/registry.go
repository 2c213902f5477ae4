package webdriver

// Element is a local handle standing in for a remote element reference.
// It carries the frame context it was found in; the handle is usable only
// while the session still addresses that same context.
type Element struct {
	id      string
	context FrameContext
	session *Session
	stale   bool
}

// ID returns the remote element id.
func (e *Element) ID() string {
	return e.id
}

// Context returns the frame context the element was found in.
func (e *Element) Context() FrameContext {
	return e.context
}

// Session returns the session that owns the element.
func (e *Element) Session() *Session {
	return e.session
}

// Registry maps remote element ids to local handles and short-circuits
// handles already known to be stale. Staleness is only authoritatively known
// by the remote end; the registry caches a likely-valid judgment.
type Registry struct {
	session *Session
	live    int
}

// NewRegistry creates a registry for the given session.
func NewRegistry(s *Session) *Registry {
	return &Registry{session: s}
}

// Register creates a handle for remoteID found in the given frame context.
func (r *Registry) Register(remoteID string, fc FrameContext) *Element {
	r.live++
	return &Element{
		id:      remoteID,
		context: fc,
		session: r.session,
	}
}

// Resolve returns the remote id of el if it may still be used in the current
// frame context. Known-stale handles fail with core.ErrStaleElement without a
// round trip.
func (r *Registry) Resolve(el *Element, current FrameContext) (string, error) {
	if el == nil || el.id == "" {
		return "", invalidArgument("element handle is empty", nil)
	}
	if el.session != r.session {
		return "", invalidArgument("element handle belongs to another session", map[string]interface{}{
			"handle": el.id,
		})
	}
	if el.stale {
		return "", staleElement(el, current, "element was reported stale by the remote end")
	}
	if el.context.Epoch != current.Epoch {
		r.MarkStale(el)
		return "", staleElement(el, current, "document has navigated since the element was found")
	}
	if !el.context.SameAs(current) {
		return "", staleElement(el, current, "element belongs to a different frame than the one addressed")
	}
	return el.id, nil
}

// MarkStale records that el can no longer be used.
func (r *Registry) MarkStale(el *Element) {
	if !el.stale {
		el.stale = true
		r.live--
	}
}

// Live returns how many registered handles have not been marked stale.
func (r *Registry) Live() int {
	return r.live
}
