package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Hubmakerlabs/reflectr/pkg/config"
	"github.com/Hubmakerlabs/reflectr/pkg/mirror/rules"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/event"
	"github.com/urfave/cli/v2"
)

// maxLine bounds a single event read from input.
const maxLine = 1 << 22

var check = &cli.Command{
	Name:  "check",
	Usage: "reports whether events would be mirrored in a direction",
	Description: `reads one JSON event per line from each FILE, or from stdin
when no FILE or - is given, and prints for every event whether the rules of
the direction admit it and which rules match.

example usage:
		inspectr check --config mirror.yml --direction inbound events.jsonl
		nak req -k 1 wss://nos.lol | inspectr check -d outbound`,
	ArgsUsage: "[FILE...]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   config.DefaultPath,
			EnvVars: []string{"MIRROR_CONFIG_PATH"},
			Usage:   "path of the YAML mirror configuration",
		},
		&cli.StringFlag{
			Name:    "direction",
			Aliases: []string{"d"},
			Value:   "outbound",
			Usage:   "outbound (local to public) or inbound (public to local)",
		},
		&cli.BoolFlag{
			Name:  "verify",
			Usage: "also check that each id is the hash of its event",
		},
	},
	Action: func(c *cli.Context) (err error) {
		var d *config.Doc
		if d, err = config.Load(c.String("config")); err != nil {
			return
		}
		var rs []rules.Rule
		switch dir := c.String("direction"); dir {
		case "outbound":
			rs = d.EventFilters.Outbound
		case "inbound":
			rs = d.EventFilters.Inbound
		default:
			return fmt.Errorf("unknown direction %q", dir)
		}
		ck := &checker{
			engine: rules.New(d.Mirroring.Whitelist),
			rules:  rs,
			verify: c.Bool("verify"),
			out:    c.App.Writer,
		}
		files := c.Args().Slice()
		if len(files) == 0 {
			files = []string{"-"}
		}
		for _, name := range files {
			if err = ck.file(c.App.Reader, name); err != nil {
				return
			}
		}
		fmt.Fprintf(ck.out, "%d events, %d eligible, %d rejected, %d unreadable\n",
			ck.total, ck.eligible, ck.total-ck.eligible-ck.bad, ck.bad)
		return
	},
}

type checker struct {
	engine *rules.Engine
	rules  []rules.Rule
	verify bool
	out    io.Writer

	total, eligible, bad int
}

func (ck *checker) file(stdin io.Reader, name string) (err error) {
	r := stdin
	if name != "-" {
		var f *os.File
		if f, err = os.Open(name); chk.E(err) {
			return
		}
		defer f.Close()
		r = f
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<16), maxLine)
	for line := 1; sc.Scan(); line++ {
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		ck.total++
		ck.line(fmt.Sprintf("%s:%d", name, line), b)
	}
	return sc.Err()
}

func (ck *checker) line(where string, b []byte) {
	ev, err := event.Parse(b)
	if err != nil {
		ck.bad++
		fmt.Fprintf(ck.out, "%s: %v\n", where, err)
		return
	}
	if ck.verify && !ev.CheckID() {
		ck.bad++
		fmt.Fprintf(ck.out, "%s %s: id does not match content\n", where, ev.ID)
		return
	}
	var matched []string
	for i := range ck.rules {
		if ck.engine.Matches(ev, &ck.rules[i]) {
			matched = append(matched, fmt.Sprint(i))
		}
	}
	if len(matched) == 0 {
		fmt.Fprintf(ck.out, "%s %s kind %d: rejected\n", where, ev.ID, ev.Kind)
		return
	}
	ck.eligible++
	fmt.Fprintf(ck.out, "%s %s kind %d: eligible by rule %s\n", where, ev.ID,
		ev.Kind, strings.Join(matched, ","))
}
