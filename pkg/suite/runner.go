package suite

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/devicelab-dev/geoprobe/pkg/core"
	"github.com/devicelab-dev/geoprobe/pkg/jsengine"
	"github.com/devicelab-dev/geoprobe/pkg/logger"
	"github.com/devicelab-dev/geoprobe/pkg/webdriver"
)

// scrollToScript is the scrollTo step.
const scrollToScript = `arguments[0].scrollIntoView(true);`

// RunnerConfig configures the check runner.
type RunnerConfig struct {
	BaseURL    string            // overrides the suite's baseURL when set
	Env        map[string]string // merged over the suite's env, available as ${name} in pages
	StopOnFail bool              // skip remaining checks after the first unsuccessful one

	// Live progress callbacks
	OnCheckStart func(idx, total int, name string)
	OnCheckEnd   func(result core.CheckResult)
}

// Runner executes checks sequentially on one session.
type Runner struct {
	config  RunnerConfig
	session *webdriver.Session
	worker  int
}

// NewRunner creates a new Runner.
func NewRunner(session *webdriver.Session, cfg RunnerConfig) *Runner {
	return &Runner{
		config:  cfg,
		session: session,
	}
}

// Run executes all checks of the suite and tallies the result. Check
// failures are reported in the result, not as an error; an error means the
// run itself could not start.
func (r *Runner) Run(ctx context.Context, s *Suite) (*core.SuiteResult, error) {
	if err := r.prepare(ctx, s); err != nil {
		return nil, err
	}

	start := time.Now()
	result := &core.SuiteResult{
		Name:   s.Name,
		Checks: make([]core.CheckResult, len(s.Checks)),
	}

	stopped := false
	for i, c := range s.Checks {
		if stopped {
			result.Checks[i] = skipped(i, c)
			continue
		}
		result.Checks[i] = r.runCheck(ctx, s, i, c)
		if r.config.StopOnFail && !result.Checks[i].Status.IsSuccess() {
			stopped = true
		}
	}

	result.Duration = time.Since(start)
	result.Tally()
	return result, nil
}

// prepare applies suite-level session state.
func (r *Runner) prepare(ctx context.Context, s *Suite) error {
	if s.Window == nil {
		return nil
	}
	if err := r.session.SetWindowSize(ctx, *s.Window); err != nil {
		return fmt.Errorf("failed to set window size: %w", err)
	}
	return nil
}

func skipped(idx int, c Check) core.CheckResult {
	return core.CheckResult{
		Index:  idx,
		Name:   c.Name,
		Page:   c.Page,
		Tags:   c.Tags,
		Status: core.StatusSkipped,
	}
}

// runCheck runs one check and never returns an error: every outcome is
// recorded in the CheckResult.
func (r *Runner) runCheck(ctx context.Context, s *Suite, idx int, c Check) core.CheckResult {
	if r.config.OnCheckStart != nil {
		r.config.OnCheckStart(idx, len(s.Checks), c.Name)
	}

	result := core.CheckResult{
		Index:     idx,
		Name:      c.Name,
		Page:      c.Page,
		Tags:      c.Tags,
		Status:    core.StatusRunning,
		StartTime: time.Now(),
		Worker:    r.worker,
	}

	failures, err := r.execute(ctx, s, c, &result.Measurement)
	result.Failures = failures
	if err == nil && len(failures) > 0 {
		err = core.ErrAssertion.WithMessage(strings.Join(failures, "; "))
	}
	result.Status = core.StatusForError(err)
	if err != nil {
		result.Error = err.Error()
		result.Category = categoryOf(err)
		logger.Error("check %q: %v", c.Name, err)
	} else {
		logger.Info("check %q passed", c.Name)
	}
	result.Duration = time.Since(result.StartTime)

	if r.config.OnCheckEnd != nil {
		r.config.OnCheckEnd(result)
	}
	return result
}

// execute loads the page, locates the element, performs the steps and
// measures it. The returned failures are unmet expectations; the error is a
// transport, remote or argument problem that stopped the check.
func (r *Runner) execute(ctx context.Context, s *Suite, c Check, m *core.Measurement) ([]string, error) {
	engine := jsengine.New()
	engine.SetVariables(r.variables(s))

	pageURL, err := r.resolvePage(engine, s, c.Page)
	if err != nil {
		return nil, err
	}

	sess := r.session
	if err := sess.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}

	for _, frame := range c.Frames {
		el, err := r.find(ctx, frame)
		if err != nil {
			return nil, err
		}
		if err := sess.SwitchToFrame(ctx, el); err != nil {
			return nil, err
		}
	}

	el, err := r.find(ctx, c.Element)
	if err != nil {
		return nil, err
	}

	for _, step := range c.Steps {
		logger.Debug("check %q: %s", c.Name, step.Describe())
		if err := r.runStep(ctx, step); err != nil {
			return nil, err
		}
	}

	geo := sess.Geometry()
	inView, err := geo.LocationInView(ctx, el)
	if err != nil {
		return nil, err
	}
	m.InView = &inView

	location, err := geo.Location(ctx, el)
	if err != nil {
		return nil, err
	}
	m.Location = &location

	size, err := geo.Size(ctx, el)
	if err != nil {
		return nil, err
	}
	m.Size = &size

	window, err := sess.WindowSize(ctx)
	if err != nil {
		return nil, err
	}
	m.Window = &window

	return evaluate(engine, c.Expect, m)
}

func (r *Runner) runStep(ctx context.Context, step Step) error {
	switch {
	case step.Click != nil:
		el, err := r.find(ctx, *step.Click)
		if err != nil {
			return err
		}
		return r.session.Click(ctx, el)
	case step.ScrollTo != nil:
		el, err := r.find(ctx, *step.ScrollTo)
		if err != nil {
			return err
		}
		_, err = r.session.ExecuteScript(ctx, scrollToScript, el)
		return err
	default:
		return core.ErrInvalidArgument.WithMessage("step must set click or scrollTo")
	}
}

func (r *Runner) find(ctx context.Context, l Locator) (*webdriver.Element, error) {
	by, err := l.Strategy()
	if err != nil {
		return nil, err
	}
	return r.session.FindElement(ctx, by, l.Value)
}

// variables merges suite env with runner env; runner values win.
func (r *Runner) variables(s *Suite) map[string]interface{} {
	vars := make(map[string]interface{}, len(s.Env)+len(r.config.Env))
	for k, v := range s.Env {
		vars[k] = v
	}
	for k, v := range r.config.Env {
		vars[k] = v
	}
	return vars
}

// resolvePage expands ${...} placeholders and resolves the page against the
// base URL. Absolute page URLs are used as-is.
func (r *Runner) resolvePage(engine *jsengine.Engine, s *Suite, page string) (string, error) {
	expanded, err := engine.ExpandVariables(page)
	if err != nil {
		return "", core.ErrInvalidArgument.WithMessage("page").WithCause(err)
	}

	base := s.BaseURL
	if r.config.BaseURL != "" {
		base = r.config.BaseURL
	}
	return ResolveURL(base, expanded)
}

// ResolveURL resolves page against base. An empty base requires an absolute page.
func ResolveURL(base, page string) (string, error) {
	ref, err := url.Parse(page)
	if err != nil {
		return "", core.ErrInvalidArgument.WithMessage(fmt.Sprintf("invalid page %q", page)).WithCause(err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if base == "" {
		return "", core.ErrInvalidArgument.WithMessage(fmt.Sprintf("page %q is relative and no baseURL is set", page))
	}
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return "", core.ErrInvalidArgument.WithMessage(fmt.Sprintf("invalid baseURL %q", base))
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// evaluate compares the measurement with the expectations and runs the
// assertions. A failing assertion expression is an error, not a failure.
func evaluate(engine *jsengine.Engine, expect Expect, m *core.Measurement) ([]string, error) {
	var failures []string
	if expect.Location != nil {
		failures = append(failures, expect.Location.Match("location", map[string]int{"x": m.Location.X, "y": m.Location.Y})...)
	}
	if expect.InView != nil {
		failures = append(failures, expect.InView.Match("inView", map[string]int{"x": m.InView.X, "y": m.InView.Y})...)
	}
	if expect.Size != nil {
		failures = append(failures, expect.Size.Match("size", map[string]int{"width": m.Size.Width, "height": m.Size.Height})...)
	}

	if len(expect.Assert) == 0 {
		return failures, nil
	}

	engine.SetVariables(map[string]interface{}{
		"location": *m.Location,
		"inView":   *m.InView,
		"size":     *m.Size,
		"window":   *m.Window,
	})
	for _, expr := range expect.Assert {
		ok, err := engine.EvalBool(expr)
		if err != nil {
			return failures, core.ErrInvalidArgument.WithMessage(fmt.Sprintf("assert %q", expr)).WithCause(err)
		}
		if !ok {
			failures = append(failures, fmt.Sprintf("assert %s", expr))
		}
	}
	return failures, nil
}

func categoryOf(err error) core.ErrorCategory {
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Category
	}
	return core.ErrCategoryNone
}
