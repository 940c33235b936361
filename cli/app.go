// Package cli contains the motorhal command line interface.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

// Flags.
const (
	configFlag   = "config"
	debugFlag    = "debug"
	logFileFlag  = "log-file"
	systemFlag   = "system"
	durationFlag = "duration"
)

var app = &cli.App{
	Name:            "motorhal",
	Usage:           "configure, inspect and test robot motors",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:      configFlag,
			Aliases:   []string{"c"},
			Usage:     "load configuration from `FILE`",
			TakesFile: true,
		},
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:      logFileFlag,
			Usage:     "also write logs to `FILE`, rotated by size",
			TakesFile: true,
		},
	},
	Commands: []*cli.Command{
		{
			Name:   "validate",
			Usage:  "check a config file and report any problems",
			Action: ValidateAction,
		},
		{
			Name:   "schema",
			Usage:  "print the JSON schema of the config file",
			Action: SchemaAction,
		},
		{
			Name:   "status",
			Usage:  "build every configured motor and print its readings",
			Action: StatusAction,
		},
		{
			Name:  "diagnose",
			Usage: "run the configured diagnostic suites",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{
					Name:  systemFlag,
					Usage: "only run the given systems; may be repeated",
				},
			},
			Action: DiagnoseAction,
		},
		{
			Name:  "run",
			Usage: "keep followers in sync with their leaders until interrupted",
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  durationFlag,
					Usage: "stop after this long; zero runs until interrupted",
				},
			},
			Action: RunAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
