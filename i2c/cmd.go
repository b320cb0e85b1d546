package i2c

import (
	"fmt"
	"strings"
)

// Acknowledge values driven by the controller after a received byte.
const (
	Ack  = true
	Nack = false
)

const (
	writeBit byte = 0x00
	readBit  byte = 0x01
)

type opKind uint8

const (
	opStart opKind = iota
	opStop
	opWrite
	opRead
)

type op struct {
	kind     opKind
	data     []byte
	checkAck bool
	ack      bool
}

// Cmd is a queued command link. Nothing touches the bus until the command is
// executed by Bus.Exec, which runs it as one uninterrupted transaction.
type Cmd struct {
	ops []op
}

// NewCmd returns an empty command link.
func NewCmd() *Cmd {
	return &Cmd{}
}

// Start queues a start condition. A start queued after another start and
// before a stop is a repeated start.
func (c *Cmd) Start() *Cmd {
	c.ops = append(c.ops, op{kind: opStart})
	return c
}

// Stop queues a stop condition.
func (c *Cmd) Stop() *Cmd {
	c.ops = append(c.ops, op{kind: opStop})
	return c
}

// Write queues bytes sent by the controller. With checkAck set every byte
// must be acknowledged by the target.
func (c *Cmd) Write(p []byte, checkAck bool) *Cmd {
	if len(p) == 0 {
		return c
	}
	c.ops = append(c.ops, op{kind: opWrite, data: p, checkAck: checkAck})
	return c
}

// Address queues the address byte with the direction bit.
func (c *Cmd) Address(address byte, read bool) *Cmd {
	b := address<<1 | writeBit
	if read {
		b = address<<1 | readBit
	}
	return c.Write([]byte{b}, true)
}

// Read queues len(p) received bytes, each answered with ack.
func (c *Cmd) Read(p []byte, ack bool) *Cmd {
	if len(p) == 0 {
		return c
	}
	c.ops = append(c.ops, op{kind: opRead, data: p, ack: ack})
	return c
}

// String renders the link in the usual trace notation, e.g.
// "S EE+ F7+ Sr EF+ R7A R1N P".
func (c *Cmd) String() string {
	var b strings.Builder
	started := false
	for i, o := range c.ops {
		if i > 0 {
			b.WriteByte(' ')
		}
		switch o.kind {
		case opStart:
			if started {
				b.WriteString("Sr")
			} else {
				b.WriteString("S")
			}
			started = true
		case opStop:
			b.WriteString("P")
			started = false
		case opWrite:
			for j, v := range o.data {
				if j > 0 {
					b.WriteByte(' ')
				}
				fmt.Fprintf(&b, "%02X", v)
				if o.checkAck {
					b.WriteByte('+')
				}
			}
		case opRead:
			ack := "N"
			if o.ack {
				ack = "A"
			}
			fmt.Fprintf(&b, "R%d%s", len(o.data), ack)
		}
	}
	return b.String()
}
