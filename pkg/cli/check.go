package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/geoprobe/pkg/core"
	"github.com/devicelab-dev/geoprobe/pkg/logger"
	"github.com/devicelab-dev/geoprobe/pkg/report"
	"github.com/devicelab-dev/geoprobe/pkg/suite"
	"github.com/devicelab-dev/geoprobe/pkg/webdriver"
)

var checkCommand = &cli.Command{
	Name:      "check",
	Usage:     "Run geometry check suites",
	ArgsUsage: "<suite-file-or-folder>...",
	Description: `Run one or more YAML check suites against the remote end.

A JSON report is written to <home>/reports/<timestamp>.json unless --json
names another path.

Examples:
  geoprobe check suites/position.yaml
  geoprobe check suites/ --parallel 4 --include-tags frames
  geoprobe check suites/ -e dir=coordinates_tests --base-url http://localhost:8000/common/`,
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "parallel",
			Aliases: []string{"n"},
			Usage:   "Number of sessions running checks concurrently",
		},
		&cli.StringSliceFlag{
			Name:  "include-tags",
			Usage: "Only run checks with these tags",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-tags",
			Usage: "Skip checks with these tags",
		},
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Variables for page paths (KEY=VALUE)",
		},
		&cli.StringFlag{
			Name:  "base-url",
			Usage: "Override the suites' baseURL",
		},
		&cli.StringFlag{
			Name:  "json",
			Usage: "Write the JSON report to this path",
		},
		&cli.BoolFlag{
			Name:  "stop-on-fail",
			Usage: "Skip the remaining checks of a suite after the first failure (sequential runs only)",
		},
	},
	Action: runCheck,
}

// checkOptions are the check command's own settings.
type checkOptions struct {
	Paths      []string
	BaseURL    string
	JSONPath   string
	StopOnFail bool
}

func runCheck(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one suite file or folder is required")
	}

	rc, err := loadSettings(c)
	if err != nil {
		return err
	}
	if c.IsSet("parallel") {
		rc.Parallel = c.Int("parallel")
	}
	if rc.Parallel < 1 {
		return fmt.Errorf("--parallel must be at least 1")
	}
	if c.IsSet("include-tags") {
		rc.IncludeTags = c.StringSlice("include-tags")
	}
	if c.IsSet("exclude-tags") {
		rc.ExcludeTags = c.StringSlice("exclude-tags")
	}
	for k, v := range parseEnvVars(c.StringSlice("env")) {
		rc.Env[k] = v // CLI overrides workspace config
	}

	opts := checkOptions{
		Paths:      c.Args().Slice(),
		BaseURL:    rc.BaseURL,
		JSONPath:   c.String("json"),
		StopOnFail: c.Bool("stop-on-fail"),
	}
	if c.IsSet("base-url") {
		opts.BaseURL = c.String("base-url")
	}
	if opts.JSONPath == "" {
		opts.JSONPath = defaultReportPath(time.Now())
	}

	initLogging(rc)
	defer logger.Close()

	runID := uuid.NewString()
	logger.Info("run %s: %d path(s), parallel %d", runID, len(opts.Paths), rc.Parallel)

	suites, err := loadSuites(opts.Paths, rc.IncludeTags, rc.ExcludeTags)
	if err != nil {
		return err
	}

	ctx, cancel := notifyContext(c.Context)
	defer cancel()

	results, err := executeChecks(ctx, rc, opts, suites, func(ctx context.Context) (*webdriver.Session, error) {
		return openSession(ctx, rc)
	})
	if err != nil {
		return err
	}

	printSummary(os.Stdout, results)

	browser, _ := rc.Capabilities["browserName"].(string)
	doc := report.New(results, report.Meta{
		RunID:   runID,
		Version: Version,
		Server:  rc.Server,
		Browser: browser,
	})
	if err := report.WriteJSON(opts.JSONPath, doc); err != nil {
		return err
	}
	fmt.Printf("\n  Report: %s\n\n", opts.JSONPath)

	if doc.Status != core.StatusPassed {
		return cli.Exit("", 1)
	}
	return nil
}

// loadSuites validates every path and returns the suites to run.
func loadSuites(paths, includeTags, excludeTags []string) ([]*suite.Suite, error) {
	v := suite.NewValidator(includeTags, excludeTags)
	var suites []*suite.Suite
	var allErrors []error

	for _, path := range paths {
		result := v.Validate(path)
		suites = append(suites, result.Suites...)
		allErrors = append(allErrors, result.Errors...)
	}

	if len(allErrors) > 0 {
		fmt.Fprintf(os.Stderr, "Validation errors:\n")
		for _, err := range allErrors {
			fmt.Fprintf(os.Stderr, "  - %v\n", err)
		}
		return nil, fmt.Errorf("validation failed with %d error(s)", len(allErrors))
	}
	if len(suites) == 0 {
		return nil, fmt.Errorf("no suites found")
	}
	return suites, nil
}

// executeChecks runs each suite in turn, in parallel sessions when asked.
func executeChecks(ctx context.Context, rc *RunConfig, opts checkOptions, suites []*suite.Suite, newSession suite.SessionFactory) ([]*core.SuiteResult, error) {
	// Parallel workers report concurrently.
	var printMu sync.Mutex
	cfg := suite.RunnerConfig{
		BaseURL:    opts.BaseURL,
		Env:        rc.Env,
		StopOnFail: opts.StopOnFail,
		OnCheckEnd: func(r core.CheckResult) {
			printMu.Lock()
			defer printMu.Unlock()
			printCheckResult(os.Stdout, r)
		},
	}

	var results []*core.SuiteResult
	for _, s := range suites {
		name := s.Name
		if name == "" {
			name = s.SourcePath
			s.Name = name
		}
		fmt.Printf("\n%s%s%s %s(%d checks)%s\n", color(colorCyan), name, color(colorReset), color(colorGray), len(s.Checks), color(colorReset))
		logger.Info("running suite %q from %s", name, s.SourcePath)

		var (
			result *core.SuiteResult
			err    error
		)
		if rc.Parallel > 1 {
			result, err = suite.NewParallelRunner(rc.Parallel, newSession, cfg).Run(ctx, s)
		} else {
			result, err = runSequential(ctx, s, cfg, newSession)
		}
		if err != nil {
			return nil, fmt.Errorf("suite %s: %w", name, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func runSequential(ctx context.Context, s *suite.Suite, cfg suite.RunnerConfig, newSession suite.SessionFactory) (*core.SuiteResult, error) {
	sess, err := newSession(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sess.Quit(context.Background()); err != nil {
			logger.Warn("failed to quit session: %v", err)
		}
	}()
	return suite.NewRunner(sess, cfg).Run(ctx, s)
}

// notifyContext cancels on SIGINT/SIGTERM so sessions are closed on Ctrl+C.
func notifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
