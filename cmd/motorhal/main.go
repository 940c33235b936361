// Package main is the motorhal command itself.
package main

import (
	"os"

	"github.com/team3128/motorhal/cli"
	"github.com/team3128/motorhal/logging"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		logging.Global().Error(err)
		os.Exit(1)
	}
}
