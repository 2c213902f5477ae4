package webdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/devicelab-dev/geoprobe/pkg/core"
	"github.com/devicelab-dev/geoprobe/pkg/logger"
)

// By is a locator strategy.
type By string

// Locator strategies. W3C only defines css selector, link text, partial link
// text, tag name and xpath; ID, Name and ClassName are rewritten to CSS.
const (
	ByID              By = "id"
	ByName            By = "name"
	ByClassName       By = "class name"
	ByCSSSelector     By = "css selector"
	ByXPath           By = "xpath"
	ByLinkText        By = "link text"
	ByPartialLinkText By = "partial link text"
	ByTagName         By = "tag name"
)

// ParseBy validates a locator strategy name.
func ParseBy(s string) (By, error) {
	switch b := By(strings.ToLower(strings.TrimSpace(s))); b {
	case ByID, ByName, ByClassName, ByCSSSelector, ByXPath, ByLinkText, ByPartialLinkText, ByTagName:
		return b, nil
	case "css":
		return ByCSSSelector, nil
	}
	return "", invalidArgument(fmt.Sprintf("unknown locator strategy %q", s), nil)
}

// Options configures a new Session.
type Options struct {
	ServerURL      string
	Capabilities   map[string]interface{}
	CommandTimeout time.Duration
	Window         *core.Size // resize the window after the session starts
}

// Session is one active connection to a remote end. It owns the frame
// context and element handles of that connection. A Session must not be
// used from more than one goroutine at a time; independent sessions may run
// in parallel.
type Session struct {
	client       *Client
	frames       *FrameTracker
	registry     *Registry
	capabilities map[string]interface{}
	geometry     *Geometry
}

// NewSession starts a session on the remote end.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	if opts.ServerURL == "" {
		return nil, invalidArgument("server URL is required", nil)
	}
	caps := opts.Capabilities
	if caps == nil {
		caps = map[string]interface{}{}
	}

	s := newSession(NewClient(opts.ServerURL, opts.CommandTimeout))
	negotiated, err := s.client.NewSession(ctx, caps)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.capabilities = negotiated

	if opts.Window != nil {
		if err := s.SetWindowSize(ctx, *opts.Window); err != nil {
			_ = s.Quit(ctx)
			return nil, err
		}
	}
	return s, nil
}

func newSession(client *Client) *Session {
	s := &Session{
		client: client,
		frames: NewFrameTracker(),
	}
	s.registry = NewRegistry(s)
	s.geometry = &Geometry{session: s}
	return s
}

// ID returns the remote session id.
func (s *Session) ID() string {
	return s.client.SessionID()
}

// Capabilities returns the capabilities negotiated by the remote end.
func (s *Session) Capabilities() map[string]interface{} {
	return s.capabilities
}

// Frames returns the session's frame tracker.
func (s *Session) Frames() *FrameTracker {
	return s.frames
}

// Registry returns the session's element handle registry.
func (s *Session) Registry() *Registry {
	return s.registry
}

// Geometry returns the geometry query engine bound to this session.
func (s *Session) Geometry() *Geometry {
	return s.geometry
}

// Quit deletes the remote session. Handles of this session become unusable.
func (s *Session) Quit(ctx context.Context) error {
	s.frames.OnNavigate()
	return s.client.DeleteSession(ctx)
}

func (s *Session) checkOpen() error {
	if s.client.SessionID() == "" {
		return core.ErrTransport.WithMessage("session is not open")
	}
	return nil
}

// Navigation

// Navigate loads url in the top-level browsing context.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if url == "" {
		return invalidArgument("url is required", nil)
	}
	return s.navigation(ctx, "/url", map[string]interface{}{"url": url})
}

// Refresh reloads the current page.
func (s *Session) Refresh(ctx context.Context) error {
	return s.navigation(ctx, "/refresh", nil)
}

// Back goes one step back in history.
func (s *Session) Back(ctx context.Context) error {
	return s.navigation(ctx, "/back", nil)
}

// Forward goes one step forward in history.
func (s *Session) Forward(ctx context.Context) error {
	return s.navigation(ctx, "/forward", nil)
}

func (s *Session) navigation(ctx context.Context, suffix string, body interface{}) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.client.post(ctx, s.client.sessionPath()+suffix, body); err != nil {
		return err
	}
	s.frames.OnNavigate()
	logger.Debug("session %s navigated (%s), frame context reset", s.ID(), suffix)
	return nil
}

// CurrentURL returns the URL of the top-level browsing context.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	raw, err := s.client.get(ctx, s.client.sessionPath()+"/url")
	if err != nil {
		return "", err
	}
	var url string
	if err := json.Unmarshal(raw, &url); err != nil {
		return "", core.ErrTransport.WithMessage("invalid url response").WithCause(err)
	}
	return url, nil
}

// Element Operations

func locatorBody(by By, value string) (map[string]interface{}, error) {
	if value == "" {
		return nil, invalidArgument("locator value is empty", map[string]interface{}{"using": string(by)})
	}
	using, selector := by, value
	switch by {
	case ByID:
		using, selector = ByCSSSelector, fmt.Sprintf(`[id="%s"]`, cssEscape(value))
	case ByName:
		using, selector = ByCSSSelector, fmt.Sprintf(`[name="%s"]`, cssEscape(value))
	case ByClassName:
		if strings.ContainsAny(value, " \t\n") {
			return nil, invalidArgument("compound class names are not permitted", map[string]interface{}{"value": value})
		}
		using, selector = ByCSSSelector, "."+value
	case ByCSSSelector, ByXPath, ByLinkText, ByPartialLinkText, ByTagName:
	default:
		return nil, invalidArgument(fmt.Sprintf("unknown locator strategy %q", by), nil)
	}
	return map[string]interface{}{
		"using": string(using),
		"value": selector,
	}, nil
}

func cssEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// FindElement finds a single element in the current frame.
func (s *Session) FindElement(ctx context.Context, by By, value string) (*Element, error) {
	body, err := locatorBody(by, value)
	if err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	fc := s.frames.Current()
	raw, err := s.client.post(ctx, s.client.sessionPath()+"/element", body)
	if err != nil {
		return nil, withFrame(err, fc)
	}

	var elem map[string]interface{}
	if err := json.Unmarshal(raw, &elem); err != nil {
		return nil, core.ErrTransport.WithMessage("invalid element response").WithCause(err)
	}
	id := extractElementID(elem)
	if id == "" {
		return nil, core.ErrTransport.WithMessage("element response has no element reference")
	}
	return s.registry.Register(id, fc), nil
}

// FindElements finds all matching elements in the current frame.
func (s *Session) FindElements(ctx context.Context, by By, value string) ([]*Element, error) {
	body, err := locatorBody(by, value)
	if err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	fc := s.frames.Current()
	raw, err := s.client.post(ctx, s.client.sessionPath()+"/elements", body)
	if err != nil {
		return nil, withFrame(err, fc)
	}

	var values []map[string]interface{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, core.ErrTransport.WithMessage("invalid elements response").WithCause(err)
	}

	var elements []*Element
	for _, v := range values {
		if id := extractElementID(v); id != "" {
			elements = append(elements, s.registry.Register(id, fc))
		}
	}
	return elements, nil
}

// Click clicks an element. Clicks that navigate away are not detected;
// call NotifyNavigation when the caller knows a new document was loaded.
func (s *Session) Click(ctx context.Context, el *Element) error {
	id, err := s.resolve(el)
	if err != nil {
		return err
	}
	_, err = s.client.post(ctx, s.client.elementPath(id)+"/click", nil)
	return s.elementError(err, el)
}

// NotifyNavigation records a navigation the session did not initiate itself.
func (s *Session) NotifyNavigation() {
	s.frames.OnNavigate()
}

// Frames

// SwitchToFrame changes the addressed frame. target may be an *Element
// (a frame or iframe element of the current document), an int frame index,
// or nil for the top-level document. The local context only changes once the
// remote end accepted the switch.
func (s *Session) SwitchToFrame(ctx context.Context, target interface{}) error {
	var (
		id  interface{}
		ref FrameRef
	)
	switch t := target.(type) {
	case nil:
		id = nil
	case *Element:
		if t == nil {
			id = nil
			break
		}
		eid, err := s.resolve(t)
		if err != nil {
			return err
		}
		id = map[string]interface{}{w3cElementKey: eid}
		ref = FrameRef{ElementID: eid, Index: -1}
	case int:
		if t < 0 || t > 65535 {
			return invalidArgument(fmt.Sprintf("frame index %d out of range", t), nil)
		}
		id = t
		ref = FrameRef{Index: t}
	default:
		return invalidArgument(fmt.Sprintf("unsupported frame target type %T", target), nil)
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	fc := s.frames.Current()
	if _, err := s.client.post(ctx, s.client.sessionPath()+"/frame", map[string]interface{}{"id": id}); err != nil {
		return withFrame(err, fc)
	}

	if id == nil {
		s.frames.Reset()
	} else {
		s.frames.Push(ref)
	}
	logger.Debug("session %s switched frame: %s", s.ID(), s.frames.Current())
	return nil
}

// SwitchToParentFrame addresses the parent of the current frame. At the
// top-level document it is a no-op on both ends.
func (s *Session) SwitchToParentFrame(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	fc := s.frames.Current()
	if _, err := s.client.post(ctx, s.client.sessionPath()+"/frame/parent", nil); err != nil {
		return withFrame(err, fc)
	}
	s.frames.Pop()
	return nil
}

// Scripts

// ExecuteScript runs a synchronous script in the current frame. *Element
// arguments are resolved and sent as W3C element references.
func (s *Session) ExecuteScript(ctx context.Context, script string, args ...interface{}) (json.RawMessage, error) {
	wireArgs := make([]interface{}, len(args))
	for i, a := range args {
		if el, ok := a.(*Element); ok {
			id, err := s.resolve(el)
			if err != nil {
				return nil, err
			}
			wireArgs[i] = map[string]interface{}{w3cElementKey: id}
			continue
		}
		wireArgs[i] = a
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	fc := s.frames.Current()
	raw, err := s.client.post(ctx, s.client.sessionPath()+"/execute/sync", map[string]interface{}{
		"script": script,
		"args":   wireArgs,
	})
	if err != nil {
		return nil, withFrame(err, fc)
	}
	return raw, nil
}

// Window

// WindowSize returns the outer size of the current window.
func (s *Session) WindowSize(ctx context.Context) (core.Size, error) {
	if err := s.checkOpen(); err != nil {
		return core.Size{}, err
	}
	raw, err := s.client.get(ctx, s.client.sessionPath()+"/window/rect")
	if err != nil {
		return core.Size{}, err
	}
	r, err := decodeRect(raw)
	if err != nil {
		return core.Size{}, err
	}
	return core.Size{Width: int(r.Width), Height: int(r.Height)}, nil
}

// SetWindowSize resizes the current window.
func (s *Session) SetWindowSize(ctx context.Context, size core.Size) error {
	if size.Width <= 0 || size.Height <= 0 {
		return invalidArgument(fmt.Sprintf("window size %s must be positive", size), nil)
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.client.Do(ctx, http.MethodPost, s.client.sessionPath()+"/window/rect", map[string]interface{}{
		"width":  size.Width,
		"height": size.Height,
	})
	return err
}

// Helpers

func (s *Session) resolve(el *Element) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	return s.registry.Resolve(el, s.frames.Current())
}

// elementError annotates a remote error with the handle and frame path and
// caches stale judgments reported by the remote end.
func (s *Session) elementError(err error, el *Element) error {
	if err == nil {
		return nil
	}
	if isCode(err, core.CodeStaleElement) {
		s.registry.MarkStale(el)
	}
	if e, ok := err.(*core.ExecutionError); ok {
		return e.WithDetails(map[string]interface{}{
			"handle": el.id,
			"frame":  el.context.String(),
		})
	}
	return err
}

func withFrame(err error, fc FrameContext) error {
	if e, ok := err.(*core.ExecutionError); ok {
		return e.WithDetails(map[string]interface{}{"frame": fc.String()})
	}
	return err
}

func isCode(err error, code string) bool {
	e, ok := err.(*core.ExecutionError)
	return ok && e.Code == code
}

func invalidArgument(msg string, details map[string]interface{}) error {
	e := core.ErrInvalidArgument.WithMessage(msg)
	if details != nil {
		e = e.WithDetails(details)
	}
	return e
}

func staleElement(el *Element, current FrameContext, reason string) error {
	return core.ErrStaleElement.WithMessage("stale element reference: " + reason).WithDetails(map[string]interface{}{
		"handle":       el.id,
		"frame":        el.context.String(),
		"currentFrame": current.String(),
	})
}
