package main

import (
	"github.com/Hubmakerlabs/reflectr/pkg/config"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var showConfig = &cli.Command{
	Name:      "config",
	Usage:     "validates a configuration and prints it with defaults filled in",
	ArgsUsage: "[FILE]",
	Action: func(c *cli.Context) (err error) {
		name := c.Args().First()
		if name == "" {
			name = config.DefaultPath
		}
		var d *config.Doc
		if d, err = config.Load(name); err != nil {
			return
		}
		enc := yaml.NewEncoder(c.App.Writer)
		enc.SetIndent(2)
		if err = enc.Encode(d); chk.E(err) {
			return
		}
		return enc.Close()
	},
}
