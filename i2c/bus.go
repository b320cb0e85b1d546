package i2c

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/weather"
	"github.com/mklimuk/weather/snsctx"
)

// DefaultTimeout bounds a single transaction.
const DefaultTimeout = time.Second

// Controller drives the bus at byte level. Implementations must return
// promptly once ctx is done.
type Controller interface {
	// Start issues a start condition, or a repeated start when the bus is
	// already held.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// Send clocks out b and reports whether the target acknowledged it.
	Send(ctx context.Context, b byte) (acked bool, err error)
	// Receive clocks in one byte and answers it with ack (true) or nack.
	Receive(ctx context.Context, ack bool) (byte, error)
}

var _ weather.Transactor = &Bus{}

// Bus frames transactions on top of a Controller. It is safe for concurrent
// use; transactions are serialized.
type Bus struct {
	mx      sync.Mutex
	ctrl    Controller
	timeout time.Duration
}

type BusOpts struct {
	Timeout time.Duration
}

type BusOpt func(*BusOpts)

func WithTimeout(d time.Duration) BusOpt {
	return func(o *BusOpts) {
		o.Timeout = d
	}
}

func NewBus(ctrl Controller, opts ...BusOpt) *Bus {
	config := BusOpts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&config)
	}
	return &Bus{ctrl: ctrl, timeout: config.Timeout}
}

// WriteTx frames start, address+W, header, payload, stop. Every byte must be
// acknowledged.
func (b *Bus) WriteTx(ctx context.Context, address byte, header, payload []byte) error {
	if address > weather.MaxAddress {
		return weather.ErrInvalidAddress
	}
	cmd := NewCmd().
		Start().
		Address(address, false).
		Write(header, true).
		Write(payload, true).
		Stop()
	if err := b.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("write to %#02x failed: %w", address, err)
	}
	return nil
}

// ReadTx selects reg with a write phase, then reads len(buffer) bytes after a
// repeated start. All bytes but the last are acknowledged; the last one is
// nacked to end the transfer.
func (b *Bus) ReadTx(ctx context.Context, address, reg byte, buffer []byte) error {
	if err := weather.ValidateTransfer(address, len(buffer)); err != nil {
		return err
	}
	n := len(buffer)
	cmd := NewCmd().
		Start().
		Address(address, false).
		Write([]byte{reg}, true).
		Start().
		Address(address, true)
	if n > 1 {
		cmd.Read(buffer[:n-1], Ack)
	}
	cmd.Read(buffer[n-1:], Nack).Stop()
	if err := b.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("read from %#02x register %#02x failed: %w", address, reg, err)
	}
	return nil
}

// Exec runs cmd as one transaction bounded by the bus timeout. On failure
// the bus is released with a best effort stop.
func (b *Bus) Exec(ctx context.Context, cmd *Cmd) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if snsctx.IsVerbose(ctx) {
		slog.Debug("i2c exec", "cmd", cmd.String())
	}
	txCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	err := b.run(txCtx, cmd)
	if err == nil {
		return nil
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), b.timeout)
	defer stopCancel()
	if serr := b.ctrl.Stop(stopCtx); serr != nil {
		slog.Debug("could not release bus after failed transaction", "error", serr)
	}
	return err
}

func (b *Bus) run(ctx context.Context, cmd *Cmd) error {
	for _, o := range cmd.ops {
		if err := ctx.Err(); err != nil {
			return classify(err)
		}
		switch o.kind {
		case opStart:
			if err := b.ctrl.Start(ctx); err != nil {
				return classify(err)
			}
		case opStop:
			if err := b.ctrl.Stop(ctx); err != nil {
				return classify(err)
			}
		case opWrite:
			for i, v := range o.data {
				acked, err := b.ctrl.Send(ctx, v)
				if err != nil {
					return classify(err)
				}
				if o.checkAck && !acked {
					return fmt.Errorf("%w: byte %d (%#02x)", weather.ErrNacked, i, v)
				}
			}
		case opRead:
			for i := range o.data {
				v, err := b.ctrl.Receive(ctx, o.ack)
				if err != nil {
					return classify(err)
				}
				o.data[i] = v
			}
		}
	}
	return nil
}

// classify maps deadline overruns to weather.ErrTimeout.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, weather.ErrTimeout) {
		return fmt.Errorf("%w: %w", weather.ErrTimeout, err)
	}
	return err
}
