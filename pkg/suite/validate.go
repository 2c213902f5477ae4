package suite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Check   string
	Line    int
	Message string
}

func (e *ValidationError) Error() string {
	loc := e.File
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.File, e.Line)
	}
	if e.Check != "" {
		return fmt.Sprintf("%s: %s: %s", loc, e.Check, e.Message)
	}
	return fmt.Sprintf("%s: %s", loc, e.Message)
}

// ValidationResult contains the validation result.
type ValidationResult struct {
	// Suites are the parsed suites in file order.
	Suites []*Suite
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator validates suite files.
type Validator struct {
	includeTags []string
	excludeTags []string
}

// NewValidator creates a new Validator.
func NewValidator(includeTags, excludeTags []string) *Validator {
	return &Validator{
		includeTags: includeTags,
		excludeTags: excludeTags,
	}
}

// Validate validates a file or directory of suites.
func (v *Validator) Validate(path string) *ValidationResult {
	result := &ValidationResult{}

	info, err := os.Stat(path)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    path,
			Message: fmt.Sprintf("cannot access: %v", err),
		})
		return result
	}

	var files []string
	if info.IsDir() {
		files, err = collectSuiteFiles(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("failed to scan directory: %v", err),
			})
			return result
		}
	} else {
		files = []string{path}
	}

	for _, file := range files {
		s, err := ParseFile(file)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		errs := v.ValidateSuite(s)
		result.Errors = append(result.Errors, errs...)
		if len(errs) == 0 {
			result.Suites = append(result.Suites, s)
		}
	}

	return result
}

// collectSuiteFiles finds all .yaml/.yml files in a directory.
func collectSuiteFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// ValidateSuite checks a parsed suite and drops checks excluded by tags.
func (v *Validator) ValidateSuite(s *Suite) []error {
	var errs []error
	fail := func(c *Check, format string, args ...interface{}) {
		e := &ValidationError{File: s.SourcePath, Message: fmt.Sprintf(format, args...)}
		if c != nil {
			e.Check, e.Line = c.Name, c.Line
		}
		errs = append(errs, e)
	}

	if s.Window != nil && (s.Window.Width <= 0 || s.Window.Height <= 0) {
		fail(nil, "window must have positive width and height")
	}

	var kept []Check
	for i := range s.Checks {
		c := &s.Checks[i]
		if !ShouldIncludeCheck(*c, v.includeTags, v.excludeTags) {
			continue
		}
		kept = append(kept, *c)

		if strings.TrimSpace(c.Page) == "" {
			fail(c, "page is required")
		}
		if err := validateLocator(c.Element); err != nil {
			fail(c, "element: %v", err)
		}
		for j, frame := range c.Frames {
			if err := validateLocator(frame); err != nil {
				fail(c, "frames[%d]: %v", j, err)
			}
		}
		for j, step := range c.Steps {
			if err := validateStep(step); err != nil {
				fail(c, "steps[%d]: %v", j, err)
			}
		}
		if c.Expect.IsEmpty() {
			fail(c, "expect must set at least one of location, inView, size or assert")
		}
	}
	s.Checks = kept

	if len(s.Checks) == 0 && len(errs) == 0 {
		fail(nil, "no checks to run")
	}
	return errs
}

func validateLocator(l Locator) error {
	if strings.TrimSpace(l.Value) == "" {
		return fmt.Errorf("locator value is required")
	}
	_, err := l.Strategy()
	return err
}

func validateStep(s Step) error {
	switch {
	case s.Click != nil && s.ScrollTo != nil:
		return fmt.Errorf("step must set exactly one action")
	case s.Click != nil:
		return validateLocator(*s.Click)
	case s.ScrollTo != nil:
		return validateLocator(*s.ScrollTo)
	default:
		return fmt.Errorf("step must set click or scrollTo")
	}
}
