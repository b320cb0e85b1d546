package i2c

import (
	"context"
	"fmt"
	"time"

	"tinygo.org/x/drivers"

	"github.com/mklimuk/weather"
)

var _ weather.Transactor = &TxBus{}

// TxBus adapts a combined write/read Tx primitive, as exposed by TinyGo's
// machine.I2C and by periph buses. The HAL issues the repeated start between
// the write and the read half and owns the ack/nack framing.
type TxBus struct {
	gate    gate
	tx      drivers.I2C
	timeout time.Duration
}

func NewTxBus(tx drivers.I2C, opts ...BusOpt) *TxBus {
	config := BusOpts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&config)
	}
	return &TxBus{gate: newGate(), tx: tx, timeout: config.Timeout}
}

func (b *TxBus) WriteTx(ctx context.Context, address byte, header, payload []byte) error {
	if address > weather.MaxAddress {
		return weather.ErrInvalidAddress
	}
	w := make([]byte, 0, len(header)+len(payload))
	w = append(w, header...)
	w = append(w, payload...)
	err := bounded(ctx, b.gate, b.timeout, func() error {
		return b.tx.Tx(uint16(address), w, nil)
	})
	if err != nil {
		return fmt.Errorf("write to %#02x failed: %w", address, err)
	}
	return nil
}

func (b *TxBus) ReadTx(ctx context.Context, address, reg byte, buffer []byte) error {
	if err := weather.ValidateTransfer(address, len(buffer)); err != nil {
		return err
	}
	// the HAL may still be filling r after a timeout, so never hand it buffer
	r := make([]byte, len(buffer))
	err := bounded(ctx, b.gate, b.timeout, func() error {
		return b.tx.Tx(uint16(address), []byte{reg}, r)
	})
	if err != nil {
		return fmt.Errorf("read from %#02x register %#02x failed: %w", address, reg, err)
	}
	copy(buffer, r)
	return nil
}

// gate serializes transactions. Unlike a mutex it can be waited on in a
// select, so an abandoned transaction never blocks the next caller past its
// deadline.
type gate chan struct{}

func newGate() gate {
	return make(gate, 1)
}

// acquire waits for the gate until timer or ctx fires.
func (g gate) acquire(ctx context.Context, timer <-chan time.Time) error {
	select {
	case g <- struct{}{}:
		return nil
	case <-timer:
		return weather.ErrBusBusy
	case <-ctx.Done():
		return classify(ctx.Err())
	}
}

func (g gate) release() {
	<-g
}

// bounded runs fn holding g and waits at most timeout, gate wait included. A
// transaction that overruns is abandoned: the caller gets weather.ErrTimeout
// and the gate stays taken until fn eventually returns, so later callers see
// weather.ErrBusBusy once their own deadline passes.
func bounded(ctx context.Context, g gate, timeout time.Duration, fn func() error) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	if err := g.acquire(ctx, timer.C); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		defer g.release()
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return weather.ErrTimeout
	case <-ctx.Done():
		return classify(ctx.Err())
	}
}
