package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/weather/cmd/weather/console"
	"github.com/mklimuk/weather/storage/sqlite"
)

var historyCmd = cli.Command{
	Name:  "history",
	Usage: "show the most recent stored readings",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "db", Usage: "history database, defaults to output.history.source"},
		&cli.IntFlag{Name: "n", Value: 20, Usage: "number of readings"},
		busFlags[0],
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Fail("configuration error", err)
		}
		src := c.String("db")
		if src == "" && cfg.Output.History != nil {
			src = cfg.Output.History.Source
		}
		store, err := sqlite.New(c.Context, sqlite.Config{Source: src})
		if err != nil {
			return console.Fail("history error", err)
		}
		defer store.Close()
		records, err := store.Recent(c.Context, c.Int("n"))
		if err != nil {
			return console.Fail("history error", err)
		}
		w := tabwriter.NewWriter(os.Stdout, 12, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "TIME\tTEMP C\tPRESSURE PA\tHUMIDITY %%\n")
		for _, r := range records {
			_, _ = fmt.Fprintf(w, "%s\t%.2f\t%.0f\t%.2f\n", r.Time.Local().Format(time.DateTime), r.Temperature, r.Pressure, r.Humidity)
		}
		return w.Flush()
	},
}
