// Package register narrows a bus Transactor to "read/write N bytes at
// register R".
package register

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mklimuk/weather"
)

var _ weather.RegisterIO = &Access{}

type Opts struct {
	// TolerantWrites reports non-timeout write failures as success after
	// logging them, the way early firmware did.
	TolerantWrites bool
	Logger         *slog.Logger
}

type Opt func(*Opts)

func WithTolerantWrites() Opt {
	return func(o *Opts) {
		o.TolerantWrites = true
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

type Access struct {
	bus      weather.Transactor
	tolerant bool
	log      *slog.Logger
}

func New(bus weather.Transactor, opts ...Opt) *Access {
	config := Opts{Logger: slog.Default()}
	for _, opt := range opts {
		opt(&config)
	}
	return &Access{
		bus:      bus,
		tolerant: config.TolerantWrites,
		log:      config.Logger,
	}
}

// ReadRegister reads n bytes starting at reg. Any bus failure is reported as
// weather.ErrCommFailure wrapping the cause.
func (a *Access) ReadRegister(ctx context.Context, address, reg byte, n int) ([]byte, error) {
	if err := weather.ValidateTransfer(address, n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := a.bus.ReadTx(ctx, address, reg, buf); err != nil {
		a.log.Debug("register read failed", "address", address, "register", reg, "len", n, "error", err)
		return nil, weather.CommFailure(err)
	}
	return buf, nil
}

// WriteRegister writes data starting at reg. Timeouts always surface; other
// failures are swallowed when tolerant writes are enabled.
func (a *Access) WriteRegister(ctx context.Context, address, reg byte, data []byte) error {
	if address > weather.MaxAddress {
		return weather.ErrInvalidAddress
	}
	err := a.bus.WriteTx(ctx, address, []byte{reg}, data)
	if err == nil {
		return nil
	}
	if a.tolerant && !errors.Is(err, weather.ErrTimeout) {
		a.log.Warn("register write failed, ignoring", "address", address, "register", reg, "error", err)
		return nil
	}
	a.log.Debug("register write failed", "address", address, "register", reg, "error", err)
	return weather.CommFailure(err)
}
