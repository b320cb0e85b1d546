package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/weather/adapter"
	"github.com/mklimuk/weather/cmd/weather/console"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "MCP2221 bridge maintenance",
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
	},
}

var indexFlag = &cli.IntFlag{
	Name:  "index",
	Value: -1,
	Usage: "bridge index when several are attached",
}

var mcp2221StatusCmd = cli.Command{
	Name:  "status",
	Flags: []cli.Flag{indexFlag},
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221(adapter.WithIndex(c.Int("index")))
		status, err := a.Status(commandContext(c))
		if err != nil {
			return console.Fail("adapter communication error", err)
		}
		return encodeYAML(status)
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the transfer in progress and release the bus",
	Flags: []cli.Flag{indexFlag},
	Action: func(c *cli.Context) error {
		a := adapter.NewMCP2221(adapter.WithIndex(c.Int("index")))
		status, err := a.ReleaseBus(commandContext(c))
		if err != nil {
			return console.Fail("adapter communication error", err)
		}
		return encodeYAML(status)
	},
}

func encodeYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	if err := enc.Encode(v); err != nil {
		return console.Fail("encoding error", err)
	}
	return nil
}
