// Command inspectr answers questions about a mirror deployment offline: which
// events its rules admit, what its configuration resolves to and what its
// mirrored set holds.
package main

import (
	"fmt"
	"os"

	"github.com/Hubmakerlabs/reflectr/pkg/config"
	"github.com/Hubmakerlabs/reflectr/pkg/slog"
	"github.com/urfave/cli/v2"
)

var log, chk = slog.New(os.Stderr)

func newApp() *cli.App {
	return &cli.App{
		Name:    "inspectr",
		Usage:   "inspect mirror rules, configuration and the mirrored set",
		Version: config.Version,
		Commands: []*cli.Command{
			check,
			showConfig,
			seenCmd,
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "loglevel",
				Value: "warn",
				Usage: "log level [off,fatal,error,warn,info,debug,trace]",
				Action: func(c *cli.Context, s string) error {
					if !slog.SetLevelString(s) {
						return fmt.Errorf("unknown log level %q", s)
					}
					return nil
				},
			},
		},
		Before: func(c *cli.Context) error {
			if !c.IsSet("loglevel") {
				slog.SetLogLevel(slog.Warn)
			}
			return nil
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
