package suite

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/devicelab-dev/geoprobe/pkg/webdriver"
)

const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

type fakeBox struct{ x, y, width, height int }

// fakePage is a document with top-level elements and at most one iframe.
type fakePage struct {
	elements      map[string]fakeBox // keyed by the CSS selector the client sends
	frameSelector string
	frameOffset   [2]int
	frameElements map[string]fakeBox
}

type fakeElement struct {
	session  string
	load     int
	selector string
	inFrame  bool
	isFrame  bool
}

type fakeSession struct {
	page    *fakePage
	load    int
	inFrame bool
	window  [2]int
}

// fakeRemote is a minimal W3C remote end supporting several sessions.
type fakeRemote struct {
	server *httptest.Server

	mu       sync.Mutex
	pages    map[string]*fakePage
	sessions map[string]*fakeSession
	elements map[string]fakeElement
	created  int
	deleted  int
	requests []string

	// failWindow lists session ids whose window resize is refused.
	failWindow map[string]bool
}

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()
	f := &fakeRemote{
		pages: map[string]*fakePage{
			"/simple.html": {
				elements: map[string]fakeBox{
					`[id="box"]`:    {10, 10, 100, 100},
					`[id="hidden"]`: {0, 0, 0, 0},
					`[id="link"]`:   {10, 200, 40, 12},
				},
			},
			"/frame.html": {
				elements:      map[string]fakeBox{},
				frameSelector: `[name="ifr"]`,
				frameOffset:   [2]int{15, 15},
				frameElements: map[string]fakeBox{
					`[id="box"]`: {10, 10, 100, 100},
				},
			},
		},
		sessions: make(map[string]*fakeSession),
		elements: make(map[string]fakeElement),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeRemote) URL() string { return f.server.URL }

func (f *fakeRemote) factory() SessionFactory {
	return func(ctx context.Context) (*webdriver.Session, error) {
		return webdriver.NewSession(ctx, webdriver.Options{ServerURL: f.URL()})
	}
}

func (f *fakeRemote) open(t *testing.T) *webdriver.Session {
	t.Helper()
	sess, err := f.factory()(context.Background())
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(func() { _ = sess.Quit(context.Background()) })
	return sess
}

func (f *fakeRemote) requestCount(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.Contains(r, substr) {
			n++
		}
	}
	return n
}

func writeValue(w http.ResponseWriter, status int, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": value})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeValue(w, status, map[string]interface{}{"error": code, "message": msg})
}

func (f *fakeRemote) handle(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid argument", "body is not a JSON object")
			return
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 1 && parts[0] == "session" && r.Method == http.MethodPost {
		f.created++
		id := fmt.Sprintf("s%d", f.created)
		f.sessions[id] = &fakeSession{window: [2]int{1024, 700}}
		writeValue(w, http.StatusOK, map[string]interface{}{
			"sessionId":    id,
			"capabilities": map[string]interface{}{"browserName": "fake"},
		})
		return
	}
	if len(parts) < 2 || parts[0] != "session" {
		writeError(w, http.StatusNotFound, "unknown command", r.URL.Path)
		return
	}
	sid := parts[1]
	sess, ok := f.sessions[sid]
	if !ok {
		writeError(w, http.StatusNotFound, "invalid session id", sid)
		return
	}
	cmd := strings.Join(parts[2:], "/")

	switch {
	case cmd == "" && r.Method == http.MethodDelete:
		delete(f.sessions, sid)
		f.deleted++
		writeValue(w, http.StatusOK, nil)
	case cmd == "url" && r.Method == http.MethodPost:
		url, _ := body["url"].(string)
		page, ok := f.pages[strings.TrimPrefix(url, f.server.URL)]
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown error", "page not found: "+url)
			return
		}
		sess.page, sess.inFrame = page, false
		sess.load++
		writeValue(w, http.StatusOK, nil)
	case cmd == "window/rect" && r.Method == http.MethodGet:
		writeValue(w, http.StatusOK, map[string]interface{}{"x": 0, "y": 0, "width": sess.window[0], "height": sess.window[1]})
	case cmd == "window/rect" && r.Method == http.MethodPost:
		if f.failWindow[sid] {
			writeError(w, http.StatusInternalServerError, "unknown error", "window cannot be resized")
			return
		}
		width, _ := body["width"].(float64)
		height, _ := body["height"].(float64)
		sess.window = [2]int{int(width), int(height)}
		writeValue(w, http.StatusOK, map[string]interface{}{"width": sess.window[0], "height": sess.window[1]})
	case cmd == "element" && r.Method == http.MethodPost:
		f.findElement(w, sid, sess, body)
	case cmd == "frame" && r.Method == http.MethodPost:
		ref, _ := body["id"].(map[string]interface{})
		id, _ := ref[w3cElementKey].(string)
		el, ok := f.elements[id]
		if !ok || !el.isFrame || el.load != sess.load {
			writeError(w, http.StatusNotFound, "no such frame", id)
			return
		}
		sess.inFrame = true
		writeValue(w, http.StatusOK, nil)
	case cmd == "execute/sync" && r.Method == http.MethodPost:
		f.execute(w, sess, body)
	case strings.HasPrefix(cmd, "element/"):
		rest := strings.Split(strings.TrimPrefix(cmd, "element/"), "/")
		box, code := f.lookup(sess, rest[0])
		if code != "" {
			writeError(w, http.StatusNotFound, code, rest[0])
			return
		}
		if len(rest) == 2 && rest[1] == "click" {
			writeValue(w, http.StatusOK, nil)
			return
		}
		writeValue(w, http.StatusOK, map[string]interface{}{"x": box.x, "y": box.y, "width": box.width, "height": box.height})
	default:
		writeError(w, http.StatusNotFound, "unknown command", cmd)
	}
}

func (f *fakeRemote) findElement(w http.ResponseWriter, sid string, sess *fakeSession, body map[string]interface{}) {
	selector, _ := body["value"].(string)
	if sess.page == nil {
		writeError(w, http.StatusNotFound, "no such element", selector)
		return
	}
	el := fakeElement{session: sid, load: sess.load, selector: selector, inFrame: sess.inFrame}
	if sess.inFrame {
		if _, ok := sess.page.frameElements[selector]; !ok {
			writeError(w, http.StatusNotFound, "no such element", selector)
			return
		}
	} else if selector == sess.page.frameSelector && selector != "" {
		el.isFrame = true
	} else if _, ok := sess.page.elements[selector]; !ok {
		writeError(w, http.StatusNotFound, "no such element", selector)
		return
	}
	id := fmt.Sprintf("e%d", len(f.elements)+1)
	f.elements[id] = el
	writeValue(w, http.StatusOK, map[string]interface{}{w3cElementKey: id})
}

func (f *fakeRemote) lookup(sess *fakeSession, id string) (fakeBox, string) {
	el, ok := f.elements[id]
	if !ok {
		return fakeBox{}, "no such element"
	}
	if el.load != sess.load || sess.page == nil {
		return fakeBox{}, "stale element reference"
	}
	if el.inFrame {
		return sess.page.frameElements[el.selector], ""
	}
	if el.isFrame {
		return fakeBox{sess.page.frameOffset[0], sess.page.frameOffset[1], 300, 300}, ""
	}
	return sess.page.elements[el.selector], ""
}

func (f *fakeRemote) execute(w http.ResponseWriter, sess *fakeSession, body map[string]interface{}) {
	script, _ := body["script"].(string)
	args, _ := body["args"].([]interface{})
	if len(args) != 1 {
		writeError(w, http.StatusBadRequest, "invalid argument", "expected one argument")
		return
	}
	ref, _ := args[0].(map[string]interface{})
	id, _ := ref[w3cElementKey].(string)
	box, code := f.lookup(sess, id)
	if code != "" {
		writeError(w, http.StatusNotFound, code, id)
		return
	}
	if !strings.Contains(script, "getBoundingClientRect") {
		writeValue(w, http.StatusOK, nil)
		return
	}

	frames := []interface{}{}
	if f.elements[id].inFrame {
		frames = append(frames, map[string]interface{}{"dx": sess.page.frameOffset[0], "dy": sess.page.frameOffset[1]})
	}
	writeValue(w, http.StatusOK, map[string]interface{}{
		"x": box.x, "y": box.y, "width": box.width, "height": box.height,
		"frames": frames,
	})
}
