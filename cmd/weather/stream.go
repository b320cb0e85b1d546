package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/weather/acquisition"
	"github.com/mklimuk/weather/cmd/weather/console"
	"github.com/mklimuk/weather/config"
	"github.com/mklimuk/weather/emit"
	"github.com/mklimuk/weather/emit/metrics"
	"github.com/mklimuk/weather/emit/mqtt"
	"github.com/mklimuk/weather/storage/sqlite"
)

var unitFlag = &cli.StringFlag{
	Name:    "unit",
	Aliases: []string{"u"},
	Usage:   "temperature unit, C or F",
}

var streamCmd = cli.Command{
	Name:  "stream",
	Usage: "run forced mode measurements until interrupted",
	Flags: append([]cli.Flag{unitFlag}, busFlags...),
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Fail("configuration error", err)
		}
		ctx, stop := signal.NotifyContext(commandContext(c), os.Interrupt, syscall.SIGTERM)
		defer stop()

		b, err := openBackend(ctx, cfg)
		if err != nil {
			return console.Fail("bus initialization error", err)
		}
		defer func() {
			if err := b.Close(); err != nil {
				console.Errorf("error closing bus: %s", console.Red(err))
			}
		}()
		dev, err := newDevice(cfg, b)
		if err != nil {
			return console.Fail("device error", err)
		}
		settings, _ := cfg.Settings()

		sinks, observers, cleanup, err := buildOutputs(ctx, cfg)
		if err != nil {
			return console.Fail("output initialization error", err)
		}
		defer cleanup()

		opts := []acquisition.Opt{
			acquisition.WithSettings(settings),
			acquisition.WithSettle(cfg.Sensor.Settle),
			acquisition.WithInterval(cfg.Sensor.Interval),
		}
		for _, o := range observers {
			opts = append(opts, acquisition.WithObserver(o))
		}
		loop := acquisition.New(dev, sinks, opts...)
		slog.Info("starting acquisition", "adapter", cfg.Bus.Adapter, "address", cfg.Sensor.Address, "settings", settings)
		err = loop.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return console.Fail("acquisition stopped", err)
		}
		return nil
	},
}

func buildOutputs(ctx context.Context, cfg config.Config) (emit.Multi, []acquisition.Observer, func(), error) {
	var sinks emit.Multi
	var observers []acquisition.Observer
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	if cfg.Output.Console {
		unit, _ := emit.ParseUnit(cfg.Output.Unit)
		sinks = append(sinks, emit.NewConsole(console.Writer(), unit))
	}
	if cfg.Output.Log {
		sinks = append(sinks, emit.NewLog(slog.Default(), slog.LevelInfo))
	}
	if cfg.Output.MQTT != nil {
		pub, err := mqtt.Connect(*cfg.Output.MQTT)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		closers = append(closers, pub.Close)
		sinks = append(sinks, pub)
	}
	if cfg.Output.History != nil {
		store, err := sqlite.New(ctx, *cfg.Output.History)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		closers = append(closers, store.Close)
		sinks = append(sinks, store)
	}
	if cfg.Output.Metrics != nil {
		reg := prometheus.NewRegistry()
		collector, err := metrics.New(reg)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		sinks = append(sinks, collector)
		observers = append(observers, collector)
		go func() {
			if err := metrics.Serve(ctx, cfg.Output.Metrics.Listen, reg); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}
	return sinks, observers, cleanup, nil
}
