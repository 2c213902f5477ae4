package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/geoprobe/pkg/config"
	"github.com/devicelab-dev/geoprobe/pkg/core"
	"github.com/devicelab-dev/geoprobe/pkg/logger"
	"github.com/devicelab-dev/geoprobe/pkg/webdriver"
)

// RunConfig is the effective configuration after merging geoprobe.yaml with
// command-line flags. Flags win.
type RunConfig struct {
	Server         string
	Capabilities   map[string]interface{}
	CommandTimeout time.Duration
	Window         *core.Size
	BaseURL        string
	Env            map[string]string
	Parallel       int
	IncludeTags    []string
	ExcludeTags    []string
	LogFile        string
	Verbose        bool
}

// loadSettings reads the workspace config and applies the global flags.
func loadSettings(c *cli.Context) (*RunConfig, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	rc := &RunConfig{
		Server:         cfg.Server,
		Capabilities:   make(map[string]interface{}, len(cfg.Capabilities)+1),
		CommandTimeout: cfg.CommandTimeout.Std(),
		BaseURL:        cfg.BaseURL,
		Env:            make(map[string]string, len(cfg.Env)),
		Parallel:       cfg.Parallel,
		IncludeTags:    cfg.IncludeTags,
		ExcludeTags:    cfg.ExcludeTags,
		LogFile:        cfg.LogFile,
		Verbose:        c.Bool("verbose"),
	}
	for k, v := range cfg.Capabilities {
		rc.Capabilities[k] = v
	}
	for k, v := range cfg.Env {
		rc.Env[k] = v
	}
	if cfg.Window != nil {
		rc.Window = &core.Size{Width: cfg.Window.Width, Height: cfg.Window.Height}
	}

	if c.IsSet("server") {
		rc.Server = c.String("server")
	}
	if c.IsSet("timeout") {
		if c.Duration("timeout") <= 0 {
			return nil, fmt.Errorf("--timeout must be positive")
		}
		rc.CommandTimeout = c.Duration("timeout")
	}
	if browser := c.String("browser"); browser != "" {
		rc.Capabilities["browserName"] = browser
	}
	if c.IsSet("log-file") {
		rc.LogFile = c.String("log-file")
	}
	if rc.LogFile == "" {
		rc.LogFile = config.GetLogPath()
	}
	return rc, nil
}

// initLogging opens the log file. Failing to log is not fatal.
func initLogging(rc *RunConfig) {
	if err := logger.Init(rc.LogFile, rc.Verbose); err != nil {
		fmt.Printf("%sWarning:%s failed to initialize logger: %v\n", color(colorYellow), color(colorReset), err)
		return
	}
	logger.WithFields(map[string]interface{}{
		"server":  rc.Server,
		"timeout": rc.CommandTimeout.String(),
		"browser": rc.Capabilities["browserName"],
	}, "geoprobe "+Version+" started")
}

// openSession starts a session with the effective settings.
func openSession(ctx context.Context, rc *RunConfig) (*webdriver.Session, error) {
	return webdriver.NewSession(ctx, webdriver.Options{
		ServerURL:      rc.Server,
		Capabilities:   rc.Capabilities,
		CommandTimeout: rc.CommandTimeout,
		Window:         rc.Window,
	})
}

// parseEnvVars parses KEY=VALUE pairs; entries without "=" are ignored.
func parseEnvVars(envs []string) map[string]string {
	result := make(map[string]string)
	for _, e := range envs {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}
	return result
}

// defaultReportPath returns <home>/reports/<timestamp>.json.
func defaultReportPath(now time.Time) string {
	return filepath.Join(config.GetReportsDir(), now.Format("2006-01-02_15-04-05")+".json")
}
