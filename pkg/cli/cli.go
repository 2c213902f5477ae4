// Package cli provides the command-line interface for geoprobe.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "WebDriver remote end URL",
		EnvVars: []string{"GEOPROBE_SERVER"},
	},
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to geoprobe.yaml (default: ./geoprobe.yaml or ./geoprobe.yml)",
		EnvVars: []string{"GEOPROBE_CONFIG"},
	},
	&cli.DurationFlag{
		Name:    "timeout",
		Usage:   "Per-command timeout",
		EnvVars: []string{"GEOPROBE_TIMEOUT"},
	},
	&cli.StringFlag{
		Name:    "browser",
		Aliases: []string{"b"},
		Usage:   "browserName capability (chrome, firefox, ...)",
		EnvVars: []string{"GEOPROBE_BROWSER"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"GEOPROBE_VERBOSE"},
	},
	&cli.StringFlag{
		Name:    "log-file",
		Usage:   "Log file (default: <home>/geoprobe.log)",
		EnvVars: []string{"GEOPROBE_LOG_FILE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "geoprobe",
		Usage:   "Element geometry checks over WebDriver",
		Version: Version,
		Description: `geoprobe measures where a browser renders elements: the document
location, the location after scrolling into view relative to the top-level
viewport (across nested frames), and the rendered size.

Examples:
  geoprobe probe http://localhost:8000/page.html --by id --value box
  geoprobe probe http://localhost:8000/frames.html --frame name=ifr --by id --value box
  geoprobe check suites/ --parallel 4
  geoprobe validate suites/position.yaml`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			probeCommand,
			checkCommand,
			validateCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
