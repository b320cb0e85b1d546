package i2c

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// DefaultClock is the standard mode bus clock.
const DefaultClock = 100_000

var _ Controller = &BitBang{}

// BitBang is a Controller toggling two GPIO lines. Lines are driven
// open-drain style: a high level is produced by releasing the pin to its
// pull-up, never by driving it.
type BitBang struct {
	scl  gpio.PinIO
	sda  gpio.PinIO
	half time.Duration
}

// NewBitBang returns a controller clocking at roughly hz.
func NewBitBang(scl, sda gpio.PinIO, hz int) *BitBang {
	if hz <= 0 {
		hz = DefaultClock
	}
	return &BitBang{
		scl:  scl,
		sda:  sda,
		half: time.Second / time.Duration(2*hz),
	}
}

// OpenBitBang resolves the named pins through the periph host registry.
func OpenBitBang(sclName, sdaName string, hz int) (*BitBang, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	scl := gpioreg.ByName(sclName)
	if scl == nil {
		return nil, fmt.Errorf("unknown SCL pin %q", sclName)
	}
	sda := gpioreg.ByName(sdaName)
	if sda == nil {
		return nil, fmt.Errorf("unknown SDA pin %q", sdaName)
	}
	b := NewBitBang(scl, sda, hz)
	if err := b.release(b.sda); err != nil {
		return nil, err
	}
	if err := b.release(b.scl); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *BitBang) Start(ctx context.Context) error {
	if err := b.release(b.sda); err != nil {
		return err
	}
	if err := b.clockHigh(ctx); err != nil {
		return err
	}
	b.wait()
	if err := b.low(b.sda); err != nil {
		return err
	}
	b.wait()
	return b.low(b.scl)
}

func (b *BitBang) Stop(ctx context.Context) error {
	// SDA may only change while SCL is low, otherwise it reads as a start
	if err := b.low(b.scl); err != nil {
		return err
	}
	b.wait()
	if err := b.low(b.sda); err != nil {
		return err
	}
	b.wait()
	if err := b.clockHigh(ctx); err != nil {
		return err
	}
	b.wait()
	return b.release(b.sda)
}

func (b *BitBang) Send(ctx context.Context, v byte) (bool, error) {
	for i := 7; i >= 0; i-- {
		if err := b.writeBit(ctx, v&(1<<i) != 0); err != nil {
			return false, err
		}
	}
	// ninth clock: target pulls SDA low to acknowledge
	if err := b.release(b.sda); err != nil {
		return false, err
	}
	b.wait()
	if err := b.clockHigh(ctx); err != nil {
		return false, err
	}
	acked := b.sda.Read() == gpio.Low
	b.wait()
	return acked, b.low(b.scl)
}

func (b *BitBang) Receive(ctx context.Context, ack bool) (byte, error) {
	if err := b.release(b.sda); err != nil {
		return 0, err
	}
	var v byte
	for i := 0; i < 8; i++ {
		b.wait()
		if err := b.clockHigh(ctx); err != nil {
			return 0, err
		}
		v <<= 1
		if b.sda.Read() == gpio.High {
			v |= 1
		}
		b.wait()
		if err := b.low(b.scl); err != nil {
			return 0, err
		}
	}
	// ack is a low SDA on the ninth clock, nack leaves it released
	if err := b.writeBit(ctx, !ack); err != nil {
		return 0, err
	}
	return v, b.release(b.sda)
}

func (b *BitBang) writeBit(ctx context.Context, high bool) error {
	var err error
	if high {
		err = b.release(b.sda)
	} else {
		err = b.low(b.sda)
	}
	if err != nil {
		return err
	}
	b.wait()
	if err := b.clockHigh(ctx); err != nil {
		return err
	}
	b.wait()
	return b.low(b.scl)
}

// clockHigh releases SCL and waits while a target stretches the clock.
func (b *BitBang) clockHigh(ctx context.Context) error {
	if err := b.release(b.scl); err != nil {
		return err
	}
	for b.scl.Read() == gpio.Low {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("clock held low by target: %w", err)
		}
		b.wait()
	}
	return nil
}

func (b *BitBang) release(p gpio.PinIO) error {
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("could not release %s: %w", p.Name(), err)
	}
	return nil
}

func (b *BitBang) low(p gpio.PinIO) error {
	if err := p.Out(gpio.Low); err != nil {
		return fmt.Errorf("could not drive %s low: %w", p.Name(), err)
	}
	return nil
}

func (b *BitBang) wait() {
	if b.half > 0 {
		time.Sleep(b.half)
	}
}
