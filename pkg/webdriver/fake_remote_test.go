package webdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeNode is an element of a fake document. Frames carry a child document.
type fakeNode struct {
	id, name      string
	x, y, w, h    int
	fixed, hidden bool
	scrollTo      int // click scrolls the top document to this y when > 0
	child         *fakeDoc
}

type fakeDoc struct {
	height int
	nodes  []*fakeNode
}

func (d *fakeDoc) find(attr, value string) *fakeNode {
	for _, n := range d.nodes {
		if (attr == "id" && n.id == value) || (attr == "name" && n.name == value) {
			return n
		}
	}
	return nil
}

// fakePages mirrors the coordinates test pages: a 100x100 box at (10,10)
// and iframes whose content boxes sit at (15,15) in their parent.
func fakePages() map[string]*fakeDoc {
	box := func() *fakeNode { return &fakeNode{id: "box", x: 10, y: 10, w: 100, h: 100} }
	frame := func(child *fakeDoc) *fakeNode {
		return &fakeNode{name: "ifr", x: 15, y: 15, w: 300, h: 300, child: child}
	}
	inner := func() *fakeDoc { return &fakeDoc{height: 300, nodes: []*fakeNode{box()}} }

	return map[string]*fakeDoc{
		"/simple_page.html":                 {height: 600, nodes: []*fakeNode{box()}},
		"/page_with_invisible_element.html": {height: 600, nodes: []*fakeNode{{id: "box", hidden: true}}},
		"/page_with_element_out_of_view.html": {height: 5200, nodes: []*fakeNode{
			{id: "box", x: 10, y: 5010, w: 100, h: 100},
		}},
		"/element_in_frame.html": {height: 600, nodes: []*fakeNode{frame(inner())}},
		"/element_in_nested_frame.html": {height: 600, nodes: []*fakeNode{
			frame(&fakeDoc{height: 300, nodes: []*fakeNode{frame(inner())}}),
		}},
		"/page_with_fixed_element.html": {height: 6000, nodes: []*fakeNode{
			{id: "fixed", x: 0, y: 0, w: 500, h: 30, fixed: true},
			{id: "bottom", x: 10, y: 5900, w: 50, h: 20, scrollTo: 5000},
		}},
	}
}

// fakeRemote is an in-process W3C remote end with a tiny layout model.
type fakeRemote struct {
	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	pages     map[string]*fakeDoc
	top       *fakeDoc
	frames    []*fakeDoc // current frame chain below top
	history   []string   // loaded page paths
	pos       int        // index of the current page in history
	scrollY   int
	load      int
	viewportH int
	windowW   int
	windowH   int
	delay     time.Duration
	requests  []string
	inflight  int
	overlaps  int
}

var (
	cssIDRe   = regexp.MustCompile(`^\[(id|name)="(.*)"\]$`)
	elementRe = regexp.MustCompile(`^/session/s1/element/([^/]+)/(rect|click)$`)
)

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()
	f := &fakeRemote{
		t:         t,
		pages:     fakePages(),
		viewportH: 600,
		windowW:   1024,
		windowH:   700,
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeRemote) URL() string { return f.server.URL }

// open starts a session against the fake and loads page when non-empty.
func (f *fakeRemote) open(page string) *Session {
	f.t.Helper()
	s, err := NewSession(context.Background(), Options{ServerURL: f.URL()})
	if err != nil {
		f.t.Fatalf("NewSession failed: %v", err)
	}
	if page != "" {
		if err := s.Navigate(context.Background(), f.URL()+page); err != nil {
			f.t.Fatalf("Navigate(%s) failed: %v", page, err)
		}
	}
	return s
}

func writeValue(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"value": value}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeValue(w, status, map[string]interface{}{"error": code, "message": msg, "stacktrace": ""})
}

func (f *fakeRemote) current() *fakeDoc {
	if len(f.frames) == 0 {
		return f.top
	}
	return f.frames[len(f.frames)-1]
}

func (f *fakeRemote) elementID(n *fakeNode) string {
	key := n.id
	if key == "" {
		key = n.name
	}
	return fmt.Sprintf("%d-%s", f.load, key)
}

// lookup resolves an element id in the current frame document.
func (f *fakeRemote) lookup(id string) (*fakeNode, string) {
	parts := strings.SplitN(id, "-", 2)
	if len(parts) != 2 || parts[0] != fmt.Sprint(f.load) {
		return nil, "stale element reference"
	}
	if doc := f.current(); doc != nil {
		if n := doc.find("id", parts[1]); n != nil {
			return n, ""
		}
		if n := doc.find("name", parts[1]); n != nil {
			return n, ""
		}
	}
	return nil, "no such element"
}

func (f *fakeRemote) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.inflight++
	if f.inflight > 1 {
		f.overlaps++
	}
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	delay := f.delay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	var body map[string]interface{}
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid argument", "body is not a JSON object")
			return
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/session" && r.Method == http.MethodPost:
		writeValue(w, http.StatusOK, map[string]interface{}{
			"sessionId":    "s1",
			"capabilities": map[string]interface{}{"browserName": "fake"},
		})
	case path == "/session/s1" && r.Method == http.MethodDelete:
		writeValue(w, http.StatusOK, nil)
	case path == "/session/s1/url" && r.Method == http.MethodPost:
		url, _ := body["url"].(string)
		doc, ok := f.pages[strings.TrimPrefix(url, f.server.URL)]
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown error", "page not found: "+url)
			return
		}
		if len(f.history) > 0 {
			f.history = f.history[:f.pos+1]
		}
		f.history = append(f.history, strings.TrimPrefix(url, f.server.URL))
		f.pos = len(f.history) - 1
		f.top, f.frames, f.scrollY = doc, nil, 0
		f.load++
		writeValue(w, http.StatusOK, nil)
	case path == "/session/s1/url" && r.Method == http.MethodGet:
		if len(f.history) == 0 {
			writeValue(w, http.StatusOK, "about:blank")
			return
		}
		writeValue(w, http.StatusOK, f.server.URL+f.history[f.pos])
	case path == "/session/s1/back" || path == "/session/s1/forward":
		step := -1
		if strings.HasSuffix(path, "/forward") {
			step = 1
		}
		if next := f.pos + step; next >= 0 && next < len(f.history) {
			f.pos = next
			f.top, f.frames, f.scrollY = f.pages[f.history[f.pos]], nil, 0
			f.load++
		}
		writeValue(w, http.StatusOK, nil)
	case path == "/session/s1/refresh":
		f.frames, f.scrollY = nil, 0
		f.load++
		writeValue(w, http.StatusOK, nil)
	case path == "/session/s1/window/rect" && r.Method == http.MethodGet:
		writeValue(w, http.StatusOK, map[string]interface{}{"x": 0, "y": 0, "width": f.windowW, "height": f.windowH})
	case path == "/session/s1/window/rect" && r.Method == http.MethodPost:
		if width, ok := body["width"].(float64); ok {
			f.windowW = int(width)
		}
		if h, ok := body["height"].(float64); ok {
			f.windowH = int(h)
			f.viewportH = f.windowH - 100
		}
		writeValue(w, http.StatusOK, map[string]interface{}{"width": f.windowW, "height": f.windowH})
	case path == "/session/s1/element" && r.Method == http.MethodPost:
		f.findElement(w, body)
	case path == "/session/s1/elements" && r.Method == http.MethodPost:
		f.findElements(w, body)
	case path == "/session/s1/frame" && r.Method == http.MethodPost:
		f.switchFrame(w, body)
	case path == "/session/s1/frame/parent" && r.Method == http.MethodPost:
		if len(f.frames) > 0 {
			f.frames = f.frames[:len(f.frames)-1]
		}
		writeValue(w, http.StatusOK, nil)
	case path == "/session/s1/execute/sync" && r.Method == http.MethodPost:
		f.scrollIntoView(w, body)
	case elementRe.MatchString(path):
		m := elementRe.FindStringSubmatch(path)
		n, code := f.lookup(m[1])
		if n == nil {
			writeError(w, http.StatusNotFound, code, m[1])
			return
		}
		if m[2] == "click" {
			if n.scrollTo > 0 {
				f.scrollY = n.scrollTo
			}
			writeValue(w, http.StatusOK, nil)
			return
		}
		writeValue(w, http.StatusOK, f.rect(n))
	default:
		writeError(w, http.StatusNotFound, "unknown command", path)
	}
}

func (f *fakeRemote) findElement(w http.ResponseWriter, body map[string]interface{}) {
	using, _ := body["using"].(string)
	value, _ := body["value"].(string)
	m := cssIDRe.FindStringSubmatch(value)
	if using != "css selector" || m == nil {
		writeError(w, http.StatusBadRequest, "invalid selector", value)
		return
	}
	doc := f.current()
	if doc == nil {
		writeError(w, http.StatusNotFound, "no such element", value)
		return
	}
	n := doc.find(m[1], m[2])
	if n == nil {
		writeError(w, http.StatusNotFound, "no such element", value)
		return
	}
	writeValue(w, http.StatusOK, map[string]interface{}{w3cElementKey: f.elementID(n)})
}

// findElements returns every node matching the selector, possibly none.
func (f *fakeRemote) findElements(w http.ResponseWriter, body map[string]interface{}) {
	value, _ := body["value"].(string)
	m := cssIDRe.FindStringSubmatch(value)
	if m == nil {
		writeError(w, http.StatusBadRequest, "invalid selector", value)
		return
	}
	found := []interface{}{}
	if doc := f.current(); doc != nil {
		for _, n := range doc.nodes {
			if (m[1] == "id" && n.id == m[2]) || (m[1] == "name" && n.name == m[2]) {
				found = append(found, map[string]interface{}{w3cElementKey: f.elementID(n)})
			}
		}
	}
	writeValue(w, http.StatusOK, found)
}

func (f *fakeRemote) switchFrame(w http.ResponseWriter, body map[string]interface{}) {
	switch id := body["id"].(type) {
	case nil:
		f.frames = nil
		writeValue(w, http.StatusOK, nil)
	case float64:
		var count int
		for _, n := range f.current().nodes {
			if n.child != nil {
				if count == int(id) {
					f.frames = append(f.frames, n.child)
					writeValue(w, http.StatusOK, nil)
					return
				}
				count++
			}
		}
		writeError(w, http.StatusNotFound, "no such frame", fmt.Sprint(id))
	case map[string]interface{}:
		eid, _ := id[w3cElementKey].(string)
		n, code := f.lookup(eid)
		if n == nil {
			writeError(w, http.StatusNotFound, code, eid)
			return
		}
		if n.child == nil {
			writeError(w, http.StatusNotFound, "no such frame", eid)
			return
		}
		f.frames = append(f.frames, n.child)
		writeValue(w, http.StatusOK, nil)
	default:
		writeError(w, http.StatusBadRequest, "invalid argument", "bad frame id")
	}
}

// rect reports document coordinates of the element's own frame. Fixed
// elements move with the document scroll.
func (f *fakeRemote) rect(n *fakeNode) map[string]interface{} {
	if n.hidden {
		return map[string]interface{}{"x": 0, "y": 0, "width": 0, "height": 0}
	}
	y := n.y
	if n.fixed && len(f.frames) == 0 {
		y += f.scrollY
	}
	return map[string]interface{}{"x": n.x, "y": y, "width": n.w, "height": n.h}
}

// scrollIntoView models scrollIntoView(true) on the top document; frame
// documents are never taller than their frames.
func (f *fakeRemote) scrollIntoView(w http.ResponseWriter, body map[string]interface{}) {
	args, _ := body["args"].([]interface{})
	if len(args) != 1 {
		writeError(w, http.StatusBadRequest, "invalid argument", "expected one argument")
		return
	}
	ref, _ := args[0].(map[string]interface{})
	eid, _ := ref[w3cElementKey].(string)
	n, code := f.lookup(eid)
	if n == nil {
		writeError(w, http.StatusNotFound, code, eid)
		return
	}
	if n.hidden {
		writeValue(w, http.StatusOK, map[string]interface{}{
			"x": 0, "y": 0, "width": 0, "height": 0, "frames": []interface{}{},
		})
		return
	}

	y := n.y
	if len(f.frames) == 0 && !n.fixed {
		target := n.y
		if limit := f.top.height - f.viewportH; target > limit {
			target = limit
		}
		if target < 0 {
			target = 0
		}
		f.scrollY = target
		y = n.y - f.scrollY
	}

	// Frame offsets, innermost first.
	frames := []interface{}{}
	parent := f.top
	var chain []*fakeNode
	for _, doc := range f.frames {
		for _, c := range parent.nodes {
			if c.child == doc {
				chain = append(chain, c)
			}
		}
		parent = doc
	}
	for i := len(chain) - 1; i >= 0; i-- {
		frames = append(frames, map[string]interface{}{"dx": chain[i].x, "dy": chain[i].y})
	}

	writeValue(w, http.StatusOK, map[string]interface{}{
		"x": n.x, "y": y, "width": n.w, "height": n.h, "frames": frames,
	})
}

func (f *fakeRemote) requestCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			count++
		}
	}
	return count
}
