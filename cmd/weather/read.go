package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/weather"
	"github.com/mklimuk/weather/bme280"
	"github.com/mklimuk/weather/cmd/weather/console"
	"github.com/mklimuk/weather/emit"
)

var readCmd = cli.Command{
	Name:  "read",
	Usage: "take a single forced mode measurement",
	Flags: append([]cli.Flag{
		unitFlag,
		&cli.BoolFlag{Name: "raw", Usage: "also print the raw data registers"},
	}, busFlags...),
	Action: func(c *cli.Context) error {
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
		dev, err := newDevice(cfg, b)
		if err != nil {
			return console.Fail("device error", err)
		}
		settings, _ := cfg.Settings()
		if err := dev.Init(ctx); err != nil {
			return console.Fail("sensor init failed", err)
		}
		if err := dev.Configure(ctx, settings); err != nil {
			return console.Fail("sensor configuration failed", err)
		}
		if err := dev.TriggerForced(ctx); err != nil {
			return console.Fail("trigger failed", err)
		}
		settle := cfg.Sensor.Settle
		if settle <= 0 {
			settle = dev.MeasurementTime()
		}
		if err := weather.Sleep.Delay(ctx, settle); err != nil {
			return err
		}
		raw, err := dev.ReadRaw(ctx)
		if err != nil {
			return console.Fail("read failed", err)
		}
		if c.Bool("raw") {
			console.Printf("raw % X (adc T %d, P %d, H %d)\n", raw[:], raw.Temperature(), raw.Pressure(), raw.Humidity())
		}
		unit, _ := emit.ParseUnit(cfg.Output.Unit)
		r := dev.Calibration().Compensate(raw)
		return emit.NewConsole(console.Writer(), unit).Emit(ctx, r)
	},
}

var idCmd = cli.Command{
	Name:  "id",
	Usage: "probe the chip id at the configured address",
	Flags: busFlags,
	Action: func(c *cli.Context) error {
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
		dev, err := newDevice(cfg, b)
		if err != nil {
			return console.Fail("device error", err)
		}
		id, err := dev.ChipID(ctx)
		if err != nil {
			return console.Fail("probe failed", err)
		}
		name := console.Red("unknown")
		if id == bme280.ChipID {
			name = console.Green("BME280")
		}
		console.Printf("%s chip id %s (%s)\n", fmt.Sprintf("%#02x", dev.Address()), console.White(fmt.Sprintf("%#02x", id)), name)
		return nil
	},
}
