package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/geoprobe/pkg/core"
	"github.com/devicelab-dev/geoprobe/pkg/logger"
	"github.com/devicelab-dev/geoprobe/pkg/suite"
	"github.com/devicelab-dev/geoprobe/pkg/webdriver"
)

var probeCommand = &cli.Command{
	Name:      "probe",
	Usage:     "Measure one element on a page",
	ArgsUsage: "<url>",
	Description: `Load a page, optionally switch into frames, locate one element and print
its location, its location after scrolling into view and its size.

Examples:
  geoprobe probe http://localhost:8000/simple_page.html --by id --value box
  geoprobe probe http://localhost:8000/nested.html --frame name=ifr --frame name=ifr --by id --value box
  geoprobe --browser firefox probe http://localhost:8000/page.html --by "css selector" --value "#box" --json`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "by",
			Usage: "Locator strategy (id, name, class name, css selector, xpath, link text, partial link text, tag name)",
			Value: string(webdriver.ByID),
		},
		&cli.StringFlag{
			Name:     "value",
			Usage:    "Locator value",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:  "frame",
			Usage: "Frame to switch into, as strategy=value (repeatable, outermost first)",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the measurement as JSON",
		},
	},
	Action: runProbe,
}

// probeTarget is what probe measures.
type probeTarget struct {
	URL     string
	Frames  []suite.Locator
	Element suite.Locator
}

func runProbe(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("probe takes exactly one URL")
	}

	target := probeTarget{
		URL:     c.Args().First(),
		Element: suite.Locator{By: c.String("by"), Value: c.String("value")},
	}
	for _, f := range c.StringSlice("frame") {
		l, err := suite.ParseLocator(f)
		if err != nil {
			return fmt.Errorf("--frame: %w", err)
		}
		target.Frames = append(target.Frames, l)
	}

	rc, err := loadSettings(c)
	if err != nil {
		return err
	}
	initLogging(rc)
	defer logger.Close()

	ctx, cancel := notifyContext(c.Context)
	defer cancel()

	sess, err := openSession(ctx, rc)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Quit(context.Background()); err != nil {
			logger.Warn("failed to quit session: %v", err)
		}
	}()

	m, err := probe(ctx, sess, target)
	if err != nil {
		return err
	}
	return writeProbe(os.Stdout, target, m, c.Bool("json"))
}

// probe navigates, switches frames and measures the element.
func probe(ctx context.Context, sess *webdriver.Session, t probeTarget) (core.Measurement, error) {
	var m core.Measurement

	find := func(l suite.Locator) (*webdriver.Element, error) {
		by, err := l.Strategy()
		if err != nil {
			return nil, err
		}
		return sess.FindElement(ctx, by, l.Value)
	}

	if err := sess.Navigate(ctx, t.URL); err != nil {
		return m, err
	}
	for _, f := range t.Frames {
		frame, err := find(f)
		if err != nil {
			return m, fmt.Errorf("frame %s: %w", f, err)
		}
		if err := sess.SwitchToFrame(ctx, frame); err != nil {
			return m, fmt.Errorf("frame %s: %w", f, err)
		}
	}

	el, err := find(t.Element)
	if err != nil {
		return m, err
	}

	geo := sess.Geometry()
	inView, err := geo.LocationInView(ctx, el)
	if err != nil {
		return m, err
	}
	location, err := geo.Location(ctx, el)
	if err != nil {
		return m, err
	}
	size, err := geo.Size(ctx, el)
	if err != nil {
		return m, err
	}

	m.InView, m.Location, m.Size = &inView, &location, &size
	return m, nil
}

func writeProbe(w io.Writer, t probeTarget, m core.Measurement, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}
	fmt.Fprintf(w, "%s%s%s %s\n", color(colorCyan), t.Element, color(colorReset), t.URL)
	printMeasurement(w, m)
	return nil
}
