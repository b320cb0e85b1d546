package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/weather"
	"github.com/mklimuk/weather/adapter"
	"github.com/mklimuk/weather/bme280"
	"github.com/mklimuk/weather/bme280/bme280sim"
	"github.com/mklimuk/weather/config"
	"github.com/mklimuk/weather/i2c"
	"github.com/mklimuk/weather/i2c/i2csim"
	"github.com/mklimuk/weather/register"
	"github.com/mklimuk/weather/snsctx"
)

var busFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML configuration file",
		EnvVars: []string{"WEATHER_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "adapter",
		Aliases: []string{"a"},
		Usage:   "bus adapter: linux, gpio, mcp2221, nanopi or sim",
	},
	&cli.StringFlag{
		Name:  "device",
		Usage: "i2c-dev device for the linux adapter",
	},
	&cli.StringFlag{
		Name:  "address",
		Usage: "sensor address, e.g. 0x76",
	},
	&cli.BoolFlag{
		Name:  "tolerant-writes",
		Usage: "ignore non-timeout register write failures",
	},
}

// loadConfig reads the configuration file, if any, and applies flag
// overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if c.IsSet("adapter") {
		cfg.Bus.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		cfg.Bus.Device = c.String("device")
	}
	if c.IsSet("address") {
		addr, err := strconv.ParseUint(c.String("address"), 0, 8)
		if err != nil {
			return cfg, fmt.Errorf("invalid address %q: %w", c.String("address"), err)
		}
		cfg.Sensor.Address = uint8(addr)
	}
	if c.IsSet("tolerant-writes") {
		cfg.Bus.TolerantWrites = c.Bool("tolerant-writes")
	}
	if c.IsSet("unit") {
		cfg.Output.Unit = c.String("unit")
	}
	return cfg, cfg.Validate()
}

func commandContext(c *cli.Context) context.Context {
	return snsctx.SetVerbose(c.Context, c.Bool("verbose"))
}

type backend struct {
	bus   weather.Transactor
	close func() error
}

func (b *backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	opts := []i2c.BusOpt{i2c.WithTimeout(cfg.Bus.Timeout)}
	switch cfg.Bus.Adapter {
	case config.AdapterLinux:
		bus, err := i2c.OpenLinux(cfg.Bus.Device, cfg.Bus.Frequency, opts...)
		if err != nil {
			return nil, err
		}
		return &backend{bus: bus, close: bus.Close}, nil
	case config.AdapterGPIO:
		ctrl, err := i2c.OpenBitBang(cfg.Bus.SCL, cfg.Bus.SDA, cfg.Bus.Frequency)
		if err != nil {
			return nil, err
		}
		return &backend{bus: i2c.NewBus(ctrl, opts...)}, nil
	case config.AdapterMCP2221:
		bridge := adapter.NewMCP2221(adapter.WithTimeout(cfg.Bus.Timeout))
		if err := bridge.SetSpeed(ctx, cfg.Bus.Frequency); err != nil {
			return nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		return &backend{bus: bridge}, nil
	case config.AdapterNanoPi:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		bus := i2c.NewGobotBus(npi, cfg.Bus.Number, opts...)
		return &backend{bus: bus, close: func() error {
			return errors.Join(bus.Close(), npi.I2cBusAdaptor.Finalize())
		}}, nil
	case config.AdapterSim:
		sim := i2csim.New()
		sim.Attach(cfg.Sensor.Address, bme280sim.New(bme280sim.Calibration, bme280sim.Raw).Target)
		return &backend{bus: i2c.NewBus(sim, opts...)}, nil
	}
	return nil, fmt.Errorf("unknown bus adapter %q", cfg.Bus.Adapter)
}

func newRegisters(cfg config.Config, b *backend) *register.Access {
	var opts []register.Opt
	if cfg.Bus.TolerantWrites {
		opts = append(opts, register.WithTolerantWrites())
	}
	return register.New(b.bus, opts...)
}

func newDevice(cfg config.Config, b *backend) (*bme280.Device, error) {
	return bme280.New(newRegisters(cfg, b), weather.Sleep, bme280.WithAddress(cfg.Sensor.Address))
}
