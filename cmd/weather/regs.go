package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/weather/cmd/weather/console"
)

var regsCmd = cli.Command{
	Name:  "regs",
	Usage: "raw register access",
	Subcommands: cli.Commands{
		&regsReadCmd,
		&regsWriteCmd,
	},
}

var regsReadCmd = cli.Command{
	Name:      "read",
	Usage:     "read len bytes starting at reg",
	ArgsUsage: "<reg> [len]",
	Flags:     busFlags,
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return console.Exit(1, "usage: weather regs read <reg> [len]")
		}
		reg, err := parseByte(c.Args().Get(0))
		if err != nil {
			return console.Fail("invalid register", err)
		}
		n := 1
		if c.NArg() > 1 {
			if n, err = strconv.Atoi(c.Args().Get(1)); err != nil {
				return console.Fail("invalid length", err)
			}
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Fail("configuration error", err)
		}
		ctx := commandContext(c)
		b, err := openBackend(ctx, cfg)
		if err != nil {
			return console.Fail("bus initialization error", err)
		}
		defer func() { _ = b.Close() }()
		data, err := newRegisters(cfg, b).ReadRegister(ctx, cfg.Sensor.Address, reg, n)
		if err != nil {
			return console.Fail("read failed", err)
		}
		console.Print(hex.Dump(data))
		return nil
	},
}

var regsWriteCmd = cli.Command{
	Name:      "write",
	Usage:     "write hex encoded bytes starting at reg",
	ArgsUsage: "<reg> <hex>",
	Flags: append([]cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		if c.NArg() < 2 {
			return console.Exit(1, "usage: weather regs write <reg> <hex>")
		}
		reg, err := parseByte(c.Args().Get(0))
		if err != nil {
			return console.Fail("invalid register", err)
		}
		data, err := hex.DecodeString(strings.TrimPrefix(c.Args().Get(1), "0x"))
		if err != nil || len(data) == 0 {
			return console.Exit(1, "invalid data %q", c.Args().Get(1))
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Fail("configuration error", err)
		}
		if !c.Bool("yes") {
			ok, err := console.Confirm(fmt.Sprintf("write % X to register %#02x of device %#02x?", data, reg, cfg.Sensor.Address))
			if err != nil {
				return console.Fail("prompt error", err)
			}
			if !ok {
				console.PInfof(console.PictoStop, "aborted")
				return nil
			}
		}
		ctx := commandContext(c)
		b, err := openBackend(ctx, cfg)
		if err != nil {
			return console.Fail("bus initialization error", err)
		}
		defer func() { _ = b.Close() }()
		if err := newRegisters(cfg, b).WriteRegister(ctx, cfg.Sensor.Address, reg, data); err != nil {
			return console.Fail("write failed", err)
		}
		console.Infof("wrote %d bytes at %#02x", len(data), reg)
		return nil
	},
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}
