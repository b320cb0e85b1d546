package i2c

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/mklimuk/weather"
)

// wire models two open-drain lines shared by the controller and one target.
// The target reacts to SCL edges and START/STOP conditions.
type wire struct {
	ctrlSCL, ctrlSDA bool // true when the controller pulls the line low
	tgtSDA           bool
	scl, sda         bool // resolved levels, true is high

	address  byte
	bits     int
	shift    byte
	index    int
	selected bool
	reading  bool

	written    []byte
	masterAcks []bool
	starts     int
	stops      int
}

func newWire(address byte) *wire {
	return &wire{address: address, scl: true, sda: true}
}

func (w *wire) update() {
	scl := !w.ctrlSCL
	sda := !w.ctrlSDA && !w.tgtSDA
	prevSCL, prevSDA := w.scl, w.sda
	w.scl, w.sda = scl, sda
	switch {
	case prevSCL && scl && prevSDA && !sda:
		w.starts++
		w.bits, w.shift, w.index = 0, 0, 0
		w.selected, w.reading, w.tgtSDA = false, false, false
	case prevSCL && scl && !prevSDA && sda:
		w.stops++
		w.selected = false
	case !prevSCL && scl:
		w.rise()
	case prevSCL && !scl:
		w.fall()
	}
	w.sda = !w.ctrlSDA && !w.tgtSDA
}

func (w *wire) rise() {
	switch {
	case w.bits < 8:
		w.shift <<= 1
		if w.sda {
			w.shift |= 1
		}
		w.bits++
	case w.bits == 8:
		if w.selected && w.reading && w.index > 0 {
			w.masterAcks = append(w.masterAcks, !w.sda)
		}
		w.bits = 9
	}
}

func (w *wire) fall() {
	switch w.bits {
	case 8:
		if w.index == 0 {
			w.selected = w.shift>>1 == w.address
			w.reading = w.shift&1 == 1
			w.tgtSDA = w.selected
			return
		}
		if w.selected && !w.reading {
			w.written = append(w.written, w.shift)
			w.tgtSDA = true
		}
	case 9:
		w.tgtSDA = false
		w.bits, w.shift = 0, 0
		w.index++
	}
}

type wirePin struct {
	gpio.PinIO
	name string
	w    *wire
	scl  bool
}

func (p *wirePin) Name() string { return p.name }

func (p *wirePin) In(gpio.Pull, gpio.Edge) error {
	p.set(false)
	return nil
}

func (p *wirePin) Out(l gpio.Level) error {
	p.set(l == gpio.Low)
	return nil
}

func (p *wirePin) Read() gpio.Level {
	level := p.w.sda
	if p.scl {
		level = p.w.scl
	}
	return gpio.Level(level)
}

func (p *wirePin) set(low bool) {
	if p.scl {
		p.w.ctrlSCL = low
	} else {
		p.w.ctrlSDA = low
	}
	p.w.update()
}

func newWireBus(address byte) (*Bus, *wire) {
	w := newWire(address)
	scl := &wirePin{name: "SCL", w: w, scl: true}
	sda := &wirePin{name: "SDA", w: w}
	return NewBus(NewBitBang(scl, sda, 1_000_000_000)), w
}

func TestBitBang_Write(t *testing.T) {
	bus, w := newWireBus(0x77)
	err := bus.WriteTx(context.Background(), 0x77, []byte{0xF4}, []byte{0x25, 0xA0})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF4, 0x25, 0xA0}, w.written)
	assert.Equal(t, 1, w.starts)
	assert.Equal(t, 1, w.stops)
}

func TestBitBang_AddressNack(t *testing.T) {
	bus, w := newWireBus(0x76)
	err := bus.WriteTx(context.Background(), 0x77, []byte{0xF4}, []byte{0x25})
	assert.ErrorIs(t, err, weather.ErrNacked)
	assert.Empty(t, w.written)
	assert.Equal(t, 1, w.stops, "bus must be released after a nack")
}

func TestBitBang_ReadAckBoundary(t *testing.T) {
	for _, n := range []int{1, 2, 8} {
		bus, w := newWireBus(0x77)
		buf := make([]byte, n)
		require.NoError(t, bus.ReadTx(context.Background(), 0x77, 0xF7, buf))

		// target never drives data, released SDA reads as ones
		for _, v := range buf {
			assert.Equal(t, byte(0xFF), v)
		}
		want := make([]bool, n)
		for i := 0; i < n-1; i++ {
			want[i] = true
		}
		assert.Equal(t, want, w.masterAcks, "len=%d", n)
		assert.Equal(t, []byte{0xF7}, w.written)
		assert.Equal(t, 2, w.starts, "write phase start and repeated start")
		assert.Equal(t, 1, w.stops)
	}
}
