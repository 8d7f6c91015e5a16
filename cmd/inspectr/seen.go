package main

import (
	"fmt"

	"github.com/Hubmakerlabs/reflectr/pkg/mirror/seen"
	"github.com/urfave/cli/v2"
)

var pathFlag = &cli.StringFlag{
	Name:     "path",
	Aliases:  []string{"p"},
	Required: true,
	Usage:    "directory of the persistent mirrored set (storage.path)",
}

// withStore opens the set at --path for the duration of fn. The daemon must
// not be running on the same directory.
func withStore(c *cli.Context, fn func(s *seen.Badger) error) (err error) {
	var s *seen.Badger
	if s, err = seen.OpenBadger(c.String("path")); err != nil {
		return fmt.Errorf("cannot open mirrored set: %w", err)
	}
	defer func() {
		if e := s.Close(); err == nil {
			err = e
		}
	}()
	return fn(s)
}

var seenCmd = &cli.Command{
	Name:  "seen",
	Usage: "reads or trims the mirrored set",
	Subcommands: []*cli.Command{
		{
			Name:  "count",
			Usage: "prints the number of event ids held",
			Flags: []cli.Flag{pathFlag},
			Action: func(c *cli.Context) error {
				return withStore(c, func(s *seen.Badger) (err error) {
					var n int
					if n, err = s.Len(); err != nil {
						return
					}
					fmt.Fprintln(c.App.Writer, n)
					return
				})
			},
		},
		{
			Name:      "has",
			Usage:     "reports whether event ids have been mirrored",
			ArgsUsage: "ID...",
			Flags:     []cli.Flag{pathFlag},
			Action: func(c *cli.Context) error {
				if c.NArg() == 0 {
					return fmt.Errorf("no event id given")
				}
				return withStore(c, func(s *seen.Badger) (err error) {
					for _, id := range c.Args().Slice() {
						var found bool
						if found, err = s.Contains(id); err != nil {
							return
						}
						fmt.Fprintf(c.App.Writer, "%s %v\n", id, found)
					}
					return
				})
			},
		},
		{
			Name:  "evict",
			Usage: "removes the oldest ids until at most --max remain",
			Flags: []cli.Flag{
				pathFlag,
				&cli.IntFlag{
					Name:     "max",
					Required: true,
					Usage:    "number of ids to keep",
				},
			},
			Action: func(c *cli.Context) error {
				max := c.Int("max")
				if max < 0 {
					return fmt.Errorf("--max must not be negative")
				}
				return withStore(c, func(s *seen.Badger) (err error) {
					var removed int
					if removed, err = s.Evict(max); err != nil {
						return
					}
					fmt.Fprintf(c.App.Writer, "removed %d\n", removed)
					return
				})
			},
		},
	},
}
