// Package suite parses and runs declarative element geometry checks.
//
// A suite is a YAML file listing checks. Each check loads a page, switches
// into frames, locates one element, optionally performs steps, then measures
// the element and compares the measurement against partial expectations and
// JavaScript assertions:
//
//	name: position and size
//	baseURL: http://localhost:8000/common/
//	checks:
//	  - name: element in frame
//	    page: coordinates_tests/element_in_frame.html
//	    frames: [name=ifr]
//	    element: id=box
//	    expect:
//	      inView: {x: 25, y: 25}
//	      location: {x: 10, y: 10}
package suite

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/geoprobe/pkg/core"
	"github.com/devicelab-dev/geoprobe/pkg/webdriver"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Locator selects one element. In YAML it is either a mapping
// {by: id, value: box} or the shorthand "id=box".
type Locator struct {
	By    string `yaml:"by"`
	Value string `yaml:"value"`
	Line  int    `yaml:"-"`
}

// UnmarshalYAML allows Locator to be unmarshaled from string or struct.
func (l *Locator) UnmarshalYAML(node *yaml.Node) error {
	l.Line = node.Line
	if node.Kind == yaml.ScalarNode {
		parsed, err := ParseLocator(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		l.By, l.Value = parsed.By, parsed.Value
		return nil
	}

	type locatorRaw Locator
	var raw locatorRaw
	if err := node.Decode(&raw); err != nil {
		return err
	}
	l.By, l.Value = raw.By, raw.Value
	return nil
}

// ParseLocator parses the shorthand form strategy=value. Only the first "="
// separates, so CSS attribute selectors keep theirs.
func ParseLocator(s string) (Locator, error) {
	by, value, ok := strings.Cut(s, "=")
	if !ok {
		return Locator{}, fmt.Errorf("locator %q must be written as strategy=value", s)
	}
	return Locator{By: strings.TrimSpace(by), Value: strings.TrimSpace(value)}, nil
}

// Strategy returns the validated locator strategy.
func (l Locator) Strategy() (webdriver.By, error) {
	return webdriver.ParseBy(l.By)
}

// String returns the shorthand form, e.g. id=box.
func (l Locator) String() string {
	return l.By + "=" + l.Value
}

// Step is an action performed after the element was located and before it
// is measured. Exactly one field is set.
type Step struct {
	Click    *Locator `yaml:"click"`    // click an element of the current frame
	ScrollTo *Locator `yaml:"scrollTo"` // scroll an element of the current frame into view
}

// Describe returns a human-readable description.
func (s Step) Describe() string {
	switch {
	case s.Click != nil:
		return "click " + s.Click.String()
	case s.ScrollTo != nil:
		return "scrollTo " + s.ScrollTo.String()
	default:
		return "empty step"
	}
}

// Expectation is a partial expectation on a geometry value: only the keys
// that are set are compared.
type Expectation struct {
	X      *int `yaml:"x"`
	Y      *int `yaml:"y"`
	Width  *int `yaml:"width"`
	Height *int `yaml:"height"`
}

func (e Expectation) fields() map[string]int {
	fields := make(map[string]int)
	for key, v := range map[string]*int{"x": e.X, "y": e.Y, "width": e.Width, "height": e.Height} {
		if v != nil {
			fields[key] = *v
		}
	}
	return fields
}

// IsEmpty returns true if no key is set.
func (e Expectation) IsEmpty() bool {
	return len(e.fields()) == 0
}

// Match compares every specified key with actual and returns one message per
// mismatch. A key missing from actual is a mismatch.
func (e Expectation) Match(label string, actual map[string]int) []string {
	var failures []string
	expected := e.fields()
	for _, key := range []string{"x", "y", "width", "height"} {
		want, ok := expected[key]
		if !ok {
			continue
		}
		got, ok := actual[key]
		if !ok {
			failures = append(failures, fmt.Sprintf("%s.%s: not measured, want %d", label, key, want))
			continue
		}
		if got != want {
			failures = append(failures, fmt.Sprintf("%s.%s = %d, want %d", label, key, got, want))
		}
	}
	return failures
}

// Expect groups all expectations of a check.
type Expect struct {
	Location *Expectation `yaml:"location"` // document coordinates in the element's own frame
	InView   *Expectation `yaml:"inView"`   // outermost viewport coordinates after scrolling
	Size     *Expectation `yaml:"size"`
	Assert   []string     `yaml:"assert"` // JS expressions that must evaluate to true
}

// IsEmpty returns true if the check would not verify anything.
func (e Expect) IsEmpty() bool {
	return (e.Location == nil || e.Location.IsEmpty()) &&
		(e.InView == nil || e.InView.IsEmpty()) &&
		(e.Size == nil || e.Size.IsEmpty()) &&
		len(e.Assert) == 0
}

// Check is a single geometry check.
type Check struct {
	Name    string    `yaml:"name"`
	Page    string    `yaml:"page"`
	Frames  []Locator `yaml:"frames"`
	Element Locator   `yaml:"element"`
	Steps   []Step    `yaml:"steps"`
	Expect  Expect    `yaml:"expect"`
	Tags    []string  `yaml:"tags"`
	Line    int       `yaml:"-"`
}

// Suite is a parsed suite file.
type Suite struct {
	Name    string            `yaml:"name"`
	BaseURL string            `yaml:"baseURL"`
	Window  *core.Size        `yaml:"window"`
	Env     map[string]string `yaml:"env"`
	Tags    []string          `yaml:"tags"` // applied to every check
	Checks  []Check           `yaml:"checks"`

	SourcePath string `yaml:"-"`
}

// ParseFile parses a suite file.
func ParseFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided suite file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses suite YAML content.
func Parse(data []byte, sourcePath string) (*Suite, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: err.Error()}
	}
	if len(root.Content) == 0 {
		return nil, &ParseError{Path: sourcePath, Line: 1, Message: "empty suite file"}
	}

	var s Suite
	if err := root.Content[0].Decode(&s); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: err.Error()}
	}
	s.SourcePath = sourcePath
	recordCheckLines(root.Content[0], &s)

	for i := range s.Checks {
		s.Checks[i].Tags = mergeTags(s.Tags, s.Checks[i].Tags)
		if s.Checks[i].Name == "" {
			s.Checks[i].Name = fmt.Sprintf("check %d", i+1)
		}
	}
	return &s, nil
}

// recordCheckLines copies the source line of each check for error messages.
func recordCheckLines(doc *yaml.Node, s *Suite) {
	if doc.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "checks" {
			continue
		}
		for j, item := range doc.Content[i+1].Content {
			if j < len(s.Checks) {
				s.Checks[j].Line = item.Line
			}
		}
	}
}

func mergeTags(base, own []string) []string {
	seen := make(map[string]bool)
	var merged []string
	for _, t := range append(append([]string{}, base...), own...) {
		if !seen[t] {
			seen[t] = true
			merged = append(merged, t)
		}
	}
	return merged
}

// ShouldIncludeCheck checks if a check matches tag filters.
func ShouldIncludeCheck(check Check, includeTags, excludeTags []string) bool {
	if len(includeTags) > 0 {
		hasTag := false
		for _, tag := range check.Tags {
			for _, include := range includeTags {
				if tag == include {
					hasTag = true
					break
				}
			}
		}
		if !hasTag {
			return false
		}
	}

	for _, tag := range check.Tags {
		for _, exclude := range excludeTags {
			if tag == exclude {
				return false
			}
		}
	}

	return true
}
