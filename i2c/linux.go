package i2c

import (
	"fmt"
	"log/slog"

	pi2c "periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// LinuxBus is a kernel i2c-dev bus opened through periph.
type LinuxBus struct {
	*TxBus
	bus pi2c.BusCloser
}

// OpenLinux opens dev (e.g. "/dev/i2c-1" or "1"). A positive hz sets the bus
// clock where the platform allows it.
func OpenLinux(dev string, hz int, opts ...BusOpt) (*LinuxBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	if hz > 0 {
		if err := bus.SetSpeed(physic.Frequency(hz) * physic.Hertz); err != nil {
			slog.Warn("could not set bus speed", "bus", dev, "hz", hz, "error", err)
		}
	}
	return &LinuxBus{
		TxBus: NewTxBus(bus, opts...),
		bus:   bus,
	}, nil
}

func (b *LinuxBus) Close() error {
	return b.bus.Close()
}
