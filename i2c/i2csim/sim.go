// Package i2csim is a deterministic byte level bus simulator. Sim implements
// i2c.Controller, so real framing code runs against register mapped targets
// while every condition, byte and acknowledge is recorded.
package i2csim

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type EventKind uint8

const (
	EventStart EventKind = iota
	EventRepeatedStart
	EventStop
	EventWrite
	EventRead
)

// Event is one observed bus action. Ack tells whether the target
// acknowledged a written byte, or whether the controller acknowledged a read
// byte.
type Event struct {
	Kind EventKind
	Byte byte
	Ack  bool
}

func (e Event) String() string {
	switch e.Kind {
	case EventStart:
		return "S"
	case EventRepeatedStart:
		return "Sr"
	case EventStop:
		return "P"
	case EventWrite:
		if e.Ack {
			return fmt.Sprintf("%02X+", e.Byte)
		}
		return fmt.Sprintf("%02X-", e.Byte)
	default:
		if e.Ack {
			return fmt.Sprintf("%02XA", e.Byte)
		}
		return fmt.Sprintf("%02XN", e.Byte)
	}
}

type Sim struct {
	mx      sync.Mutex
	targets map[byte]*Target
	events  []Event
	faults  []error
	stall   bool

	held      bool
	addrPhase bool
	regPhase  bool
	reading   bool
	readDone  bool
	cur       *Target
}

func New() *Sim {
	return &Sim{targets: make(map[byte]*Target)}
}

// Attach places t on the bus at the 7-bit address.
func (s *Sim) Attach(address byte, t *Target) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.targets[address] = t
}

// Stall makes start, send and receive block until their context is done,
// like a bus held by a misbehaving peer.
func (s *Sim) Stall(on bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.stall = on
}

func (s *Sim) Events() []Event {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]Event(nil), s.events...)
}

// Trace renders recorded events, e.g. "S EE+ F7+ Sr EF+ 80A 00N P".
func (s *Sim) Trace() string {
	events := s.Events()
	parts := make([]string, len(events))
	for i, e := range events {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ")
}

// Faults lists protocol violations seen so far, such as reading past a nack.
func (s *Sim) Faults() []error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]error(nil), s.faults...)
}

// Reset clears the recorded events and faults.
func (s *Sim) Reset() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.events = nil
	s.faults = nil
}

func (s *Sim) Start(ctx context.Context) error {
	if err := s.blocked(ctx); err != nil {
		return err
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	kind := EventStart
	if s.held {
		kind = EventRepeatedStart
	}
	s.record(Event{Kind: kind})
	s.held = true
	s.addrPhase = true
	s.regPhase = false
	s.readDone = false
	s.cur = nil
	return nil
}

func (s *Sim) Stop(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.record(Event{Kind: EventStop})
	s.held = false
	s.cur = nil
	return nil
}

func (s *Sim) Send(ctx context.Context, b byte) (bool, error) {
	if err := s.blocked(ctx); err != nil {
		return false, err
	}
	s.mx.Lock()
	if !s.held {
		s.fault("byte %#02x sent without start", b)
	}
	if s.addrPhase {
		s.addrPhase = false
		t, ok := s.targets[b>>1]
		if !ok {
			s.record(Event{Kind: EventWrite, Byte: b})
			s.mx.Unlock()
			return false, nil
		}
		s.cur = t
		s.reading = b&0x01 == 0x01
		s.regPhase = !s.reading
		s.record(Event{Kind: EventWrite, Byte: b, Ack: true})
		s.mx.Unlock()
		return true, nil
	}
	t := s.cur
	if t == nil || s.reading {
		s.fault("byte %#02x sent outside a write transfer", b)
		s.record(Event{Kind: EventWrite, Byte: b})
		s.mx.Unlock()
		return false, nil
	}
	regPhase := s.regPhase
	s.regPhase = false
	s.mx.Unlock()

	var acked bool
	if regPhase {
		acked = t.selectRegister(b)
	} else {
		acked = t.write(b)
	}
	s.mx.Lock()
	s.record(Event{Kind: EventWrite, Byte: b, Ack: acked})
	s.mx.Unlock()
	return acked, nil
}

func (s *Sim) Receive(ctx context.Context, ack bool) (byte, error) {
	if err := s.blocked(ctx); err != nil {
		return 0, err
	}
	s.mx.Lock()
	t := s.cur
	switch {
	case t == nil || !s.reading:
		s.fault("byte received outside a read transfer")
		s.record(Event{Kind: EventRead, Byte: 0xFF, Ack: ack})
		s.mx.Unlock()
		return 0xFF, nil
	case s.readDone:
		s.fault("byte received after the final byte was nacked")
	}
	s.mx.Unlock()

	v := t.read()
	s.mx.Lock()
	defer s.mx.Unlock()
	if !ack {
		s.readDone = true
	}
	s.record(Event{Kind: EventRead, Byte: v, Ack: ack})
	return v, nil
}

func (s *Sim) blocked(ctx context.Context) error {
	s.mx.Lock()
	stall := s.stall
	s.mx.Unlock()
	if !stall {
		return ctx.Err()
	}
	<-ctx.Done()
	return ctx.Err()
}

// record and fault must be called with mx held.
func (s *Sim) record(e Event) {
	s.events = append(s.events, e)
}

func (s *Sim) fault(format string, args ...any) {
	s.faults = append(s.faults, fmt.Errorf(format, args...))
}
