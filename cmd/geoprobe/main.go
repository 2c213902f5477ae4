// Command geoprobe measures element geometry in a browser over WebDriver.
package main

import "github.com/devicelab-dev/geoprobe/pkg/cli"

func main() {
	cli.Execute()
}
