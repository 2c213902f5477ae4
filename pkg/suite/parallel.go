package suite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/geoprobe/pkg/core"
	"github.com/devicelab-dev/geoprobe/pkg/logger"
	"github.com/devicelab-dev/geoprobe/pkg/webdriver"
)

// SessionFactory opens a new session for one worker.
type SessionFactory func(ctx context.Context) (*webdriver.Session, error)

// workItem is a check and its index in the suite.
type workItem struct {
	check Check
	index int
}

// ParallelRunner runs checks across several sessions. Each worker owns its
// session; workers share only the work queue and the results slice.
type ParallelRunner struct {
	workers    int
	newSession SessionFactory
	config     RunnerConfig
}

// NewParallelRunner creates a parallel runner with n workers.
func NewParallelRunner(n int, newSession SessionFactory, config RunnerConfig) *ParallelRunner {
	if n < 1 {
		n = 1
	}
	return &ParallelRunner{
		workers:    n,
		newSession: newSession,
		config:     config,
	}
}

// Run executes checks using a work queue pattern. Results keep the suite's
// order regardless of which worker ran each check. StopOnFail is not
// applied across workers.
func (pr *ParallelRunner) Run(ctx context.Context, s *Suite) (*core.SuiteResult, error) {
	n := pr.workers
	if n > len(s.Checks) {
		n = len(s.Checks)
	}
	if n == 0 {
		result := &core.SuiteResult{Name: s.Name}
		result.Tally()
		return result, nil
	}

	// Open all sessions up front so a broken remote end fails the run, not
	// every check. Requests are not cancelled on the first failure; a
	// session created by an abandoned request would never be closed.
	sessions := make([]*webdriver.Session, n)
	closeAll := func() {
		for _, sess := range sessions {
			if sess == nil {
				continue
			}
			if err := sess.Quit(context.Background()); err != nil {
				logger.Warn("failed to quit session %s: %v", sess.ID(), err)
			}
		}
	}
	var g errgroup.Group
	for i := range sessions {
		i := i
		g.Go(func() error {
			sess, err := pr.newSession(ctx)
			if err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			sessions[i] = sess
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeAll()
		return nil, err
	}
	defer closeAll()

	startTime := time.Now()

	workQueue := make(chan workItem, len(s.Checks))
	for i, c := range s.Checks {
		workQueue <- workItem{check: c, index: i}
	}
	close(workQueue)

	results := make([]core.CheckResult, len(s.Checks))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup
	var prepErrs []error

	for i, sess := range sessions {
		wg.Add(1)

		go func(id int, sess *webdriver.Session) {
			defer wg.Done()

			runner := &Runner{
				config:  pr.config,
				session: sess,
				worker:  id,
			}
			runner.config.StopOnFail = false
			if err := runner.prepare(ctx, s); err != nil {
				resultsMu.Lock()
				prepErrs = append(prepErrs, fmt.Errorf("worker %d: %w", id, err))
				resultsMu.Unlock()
				return
			}

			for item := range workQueue {
				result := runner.runCheck(ctx, s, item.index, item.check)

				resultsMu.Lock()
				results[item.index] = result
				resultsMu.Unlock()
			}
		}(i, sess)
	}

	wg.Wait()

	if len(prepErrs) == len(sessions) {
		return nil, prepErrs[0]
	}
	for _, err := range prepErrs {
		logger.Warn("%v; its checks ran on the other workers", err)
	}

	suiteResult := &core.SuiteResult{
		Name:     s.Name,
		Duration: time.Since(startTime),
		Checks:   results,
	}
	suiteResult.Tally()
	return suiteResult, nil
}
