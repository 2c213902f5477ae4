package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/geoprobe/pkg/suite"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Parse and validate check suites without a browser",
	ArgsUsage: "<suite-file-or-folder>...",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "include-tags",
			Usage: "Only validate checks with these tags",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-tags",
			Usage: "Skip checks with these tags",
		},
	},
	Action: runValidate,
}

func runValidate(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one suite file or folder is required")
	}
	if !validatePaths(os.Stdout, c.Args().Slice(), c.StringSlice("include-tags"), c.StringSlice("exclude-tags")) {
		return cli.Exit("", 1)
	}
	return nil
}

// validatePaths prints one line per suite and per error and reports whether
// everything was valid.
func validatePaths(w io.Writer, paths, includeTags, excludeTags []string) bool {
	v := suite.NewValidator(includeTags, excludeTags)
	valid := true
	for _, path := range paths {
		result := v.Validate(path)
		for _, s := range result.Suites {
			fmt.Fprintf(w, "  %s✓%s %s %s(%d checks)%s\n", color(colorGreen), color(colorReset), s.SourcePath, color(colorGray), len(s.Checks), color(colorReset))
		}
		for _, err := range result.Errors {
			fmt.Fprintf(w, "  %s✗%s %v\n", color(colorRed), color(colorReset), err)
		}
		if !result.IsValid() {
			valid = false
		}
	}
	return valid
}
