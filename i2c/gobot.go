package i2c

import (
	"context"
	"errors"
	"fmt"
	"time"

	gi2c "gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/weather"
)

var _ weather.Transactor = &GobotBus{}

// GobotBus drives a gobot I2C connector (NanoPi, Raspberry Pi adaptors...).
// Connections are opened lazily, one per device address.
type GobotBus struct {
	gate      gate
	connector gi2c.Connector
	busNr     int
	timeout   time.Duration
	conns     map[byte]gi2c.Connection
}

// NewGobotBus uses the connector's default bus when busNr is negative.
func NewGobotBus(connector gi2c.Connector, busNr int, opts ...BusOpt) *GobotBus {
	config := BusOpts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&config)
	}
	if busNr < 0 {
		busNr = connector.DefaultI2cBus()
	}
	return &GobotBus{
		gate:      newGate(),
		connector: connector,
		busNr:     busNr,
		timeout:   config.Timeout,
		conns:     make(map[byte]gi2c.Connection),
	}
}

func (b *GobotBus) WriteTx(ctx context.Context, address byte, header, payload []byte) error {
	if address > weather.MaxAddress {
		return weather.ErrInvalidAddress
	}
	err := bounded(ctx, b.gate, b.timeout, func() error {
		conn, err := b.connection(address)
		if err != nil {
			return err
		}
		if len(header) == 0 {
			_, err = conn.Write(payload)
			return err
		}
		data := make([]byte, 0, len(header)-1+len(payload))
		data = append(data, header[1:]...)
		data = append(data, payload...)
		return conn.WriteBlockData(header[0], data)
	})
	if err != nil {
		return fmt.Errorf("write to %#02x failed: %w", address, err)
	}
	return nil
}

func (b *GobotBus) ReadTx(ctx context.Context, address, reg byte, buffer []byte) error {
	if err := weather.ValidateTransfer(address, len(buffer)); err != nil {
		return err
	}
	r := make([]byte, len(buffer))
	err := bounded(ctx, b.gate, b.timeout, func() error {
		conn, err := b.connection(address)
		if err != nil {
			return err
		}
		return conn.ReadBlockData(reg, r)
	})
	if err != nil {
		return fmt.Errorf("read from %#02x register %#02x failed: %w", address, reg, err)
	}
	copy(buffer, r)
	return nil
}

// connection must be called with the gate held.
func (b *GobotBus) connection(address byte) (gi2c.Connection, error) {
	if conn, ok := b.conns[address]; ok {
		return conn, nil
	}
	conn, err := b.connector.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not open connection on bus %d: %w", b.busNr, err)
	}
	b.conns[address] = conn
	return conn, nil
}

// Close waits at most the bus timeout for a transaction in flight.
func (b *GobotBus) Close() error {
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	if err := b.gate.acquire(context.Background(), timer.C); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	defer b.gate.release()
	var errs []error
	for addr, conn := range b.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %#02x: %w", addr, err))
		}
		delete(b.conns, addr)
	}
	return errors.Join(errs...)
}
