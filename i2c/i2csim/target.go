package i2csim

import "sync"

// Target is a register mapped device with an auto incrementing register
// pointer, the layout used by most sensors.
type Target struct {
	mx      sync.Mutex
	regs    [256]byte
	pointer byte
	nacked  map[byte]bool
	onWrite func(reg, val byte)
	onRead  func(reg byte)
}

func NewTarget() *Target {
	return &Target{nacked: make(map[byte]bool)}
}

// Set loads data starting at reg.
func (t *Target) Set(reg byte, data ...byte) {
	t.mx.Lock()
	defer t.mx.Unlock()
	for i, v := range data {
		t.regs[reg+byte(i)] = v
	}
}

// Get returns n register values starting at reg.
func (t *Target) Get(reg byte, n int) []byte {
	t.mx.Lock()
	defer t.mx.Unlock()
	out := make([]byte, n)
	for i := range out {
		out[i] = t.regs[reg+byte(i)]
	}
	return out
}

// NackWrites makes the target refuse data written to reg.
func (t *Target) NackWrites(reg byte) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.nacked[reg] = true
}

// OnWrite installs a hook called after each accepted data byte. The hook may
// use Set and Get.
func (t *Target) OnWrite(fn func(reg, val byte)) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.onWrite = fn
}

// OnRead installs a hook called before a register is read out.
func (t *Target) OnRead(fn func(reg byte)) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.onRead = fn
}

func (t *Target) selectRegister(reg byte) bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.pointer = reg
	return true
}

func (t *Target) write(v byte) bool {
	t.mx.Lock()
	reg := t.pointer
	if t.nacked[reg] {
		t.mx.Unlock()
		return false
	}
	t.regs[reg] = v
	t.pointer++
	hook := t.onWrite
	t.mx.Unlock()
	if hook != nil {
		hook(reg, v)
	}
	return true
}

func (t *Target) read() byte {
	t.mx.Lock()
	reg := t.pointer
	hook := t.onRead
	t.mx.Unlock()
	if hook != nil {
		hook(reg)
	}
	t.mx.Lock()
	defer t.mx.Unlock()
	v := t.regs[reg]
	t.pointer++
	return v
}
