// Package adapter drives USB to I2C bridges.
package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/weather"
	"github.com/mklimuk/weather/snsctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

const (
	cmdStatus          = 0x10
	cmdWriteData       = 0x90
	cmdWriteDataNoStop = 0x94
	cmdReadDataRestart = 0x93
	cmdGetData         = 0x40

	// set parameters sub-commands of cmdStatus
	paramCancelTransfer = 0x10
	paramSetSpeed       = 0x20

	statusOK         = 0x00
	statusBusy       = 0x01
	statusReadError  = 0x41
	speedAccepted    = 0x20
	ackStatusByte    = 20
	addressNackMask  = 0x40
	invalidDataSize  = 127
	reportSize       = 64
	maxChunk         = 60
	clockFrequency   = 12_000_000
	defaultRespWait  = 50 * time.Millisecond
	defaultTxTimeout = time.Second
)

var (
	ErrDeviceNotFound = errors.New("MCP2221 device not found")
	ErrAmbiguous      = errors.New("ambiguous device identification")
	ErrCommandFailed  = errors.New("command failed")
)

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"speed_divider"`
	I2CTimeout             int    `yaml:"timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent"`
	ReadPending            int    `yaml:"read_pending"`
}

// Port is an open HID device.
type Port io.ReadWriteCloser

type Opts struct {
	// Index picks one of several attached bridges.
	Index        int
	ResponseWait time.Duration
	Timeout      time.Duration
	Open         func() (Port, error)
}

type Opt func(*Opts)

func WithIndex(i int) Opt {
	return func(o *Opts) {
		o.Index = i
	}
}

func WithResponseWait(d time.Duration) Opt {
	return func(o *Opts) {
		o.ResponseWait = d
	}
}

func WithTimeout(d time.Duration) Opt {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// WithPort replaces HID enumeration.
func WithPort(open func() (Port, error)) Opt {
	return func(o *Opts) {
		o.Open = open
	}
}

var _ weather.Transactor = &MCP2221{}

// MCP2221 is a Microchip USB-HID I2C bridge. Every transaction opens the
// device, exchanges 64 byte reports and closes it again.
type MCP2221 struct {
	mx           sync.Mutex
	open         func() (Port, error)
	request      []byte
	response     []byte
	responseWait time.Duration
	timeout      time.Duration
}

func NewMCP2221(opts ...Opt) *MCP2221 {
	config := Opts{
		Index:        -1,
		ResponseWait: defaultRespWait,
		Timeout:      defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(&config)
	}
	d := &MCP2221{
		open:         config.Open,
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: config.ResponseWait,
		timeout:      config.Timeout,
	}
	if d.open == nil {
		index := config.Index
		d.open = func() (Port, error) {
			return openHID(index)
		}
	}
	return d
}

func openHID(index int) (Port, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, ErrDeviceNotFound
	}
	if index < 0 {
		if len(devs) > 1 {
			return nil, ErrAmbiguous
		}
		index = 0
	}
	if index >= len(devs) {
		return nil, fmt.Errorf("no device with id %d", index)
	}
	dev, err := devs[index].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

// WriteTx sends header and payload with a single write data command.
func (d *MCP2221) WriteTx(ctx context.Context, address byte, header, payload []byte) error {
	if address > weather.MaxAddress {
		return weather.ErrInvalidAddress
	}
	n := len(header) + len(payload)
	if n > maxChunk {
		return fmt.Errorf("write of %d bytes exceeds one report: %w", n, weather.ErrInvalidLength)
	}
	err := d.transaction(ctx, func(ctx context.Context, port Port) error {
		d.prepare(cmdWriteData, address<<1, n)
		copy(d.request[4:], header)
		copy(d.request[4+len(header):], payload)
		if err := d.command(ctx, port); err != nil {
			return err
		}
		return d.checkAddressAck(ctx, port, address)
	})
	if err != nil {
		return fmt.Errorf("write to %#02x failed: %w", address, err)
	}
	return nil
}

// ReadTx selects reg without a stop, reads with a repeated start and fetches
// the data from the bridge.
func (d *MCP2221) ReadTx(ctx context.Context, address, reg byte, buffer []byte) error {
	if err := weather.ValidateTransfer(address, len(buffer)); err != nil {
		return err
	}
	if len(buffer) > maxChunk {
		return fmt.Errorf("read of %d bytes exceeds one report: %w", len(buffer), weather.ErrInvalidLength)
	}
	err := d.transaction(ctx, func(ctx context.Context, port Port) error {
		d.prepare(cmdWriteDataNoStop, address<<1, 1)
		d.request[4] = reg
		if err := d.command(ctx, port); err != nil {
			return err
		}
		d.prepare(cmdReadDataRestart, address<<1|0x01, len(buffer))
		if err := d.command(ctx, port); err != nil {
			return err
		}
		d.prepare(cmdGetData, 0, 0)
		if err := d.exchange(ctx, port); err != nil {
			return err
		}
		if d.response[1] == statusReadError {
			return fmt.Errorf("I2C engine read error: %w", weather.ErrNacked)
		}
		if d.response[3] == invalidDataSize || int(d.response[3]) != len(buffer) {
			return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
		}
		copy(buffer, d.response[4:4+len(buffer)])
		return nil
	})
	if err != nil {
		return fmt.Errorf("read from %#02x register %#02x failed: %w", address, reg, err)
	}
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	var status *MCP2221Status
	err := d.transaction(ctx, func(ctx context.Context, port Port) error {
		d.prepare(cmdStatus, 0, 0)
		if err := d.exchange(ctx, port); err != nil {
			return err
		}
		status = bufferToStatus(d.response)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return status, nil
}

// ReleaseBus cancels the transfer in progress, recovering an engine left
// busy by an abandoned transaction.
func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	var status *MCP2221Status
	err := d.transaction(ctx, func(ctx context.Context, port Port) error {
		d.prepare(cmdStatus, 0, 0)
		d.request[2] = paramCancelTransfer
		if err := d.exchange(ctx, port); err != nil {
			return err
		}
		status = bufferToStatus(d.response)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	return status, nil
}

// SetSpeed sets the I2C clock.
func (d *MCP2221) SetSpeed(ctx context.Context, hz int) error {
	if hz <= 0 {
		return fmt.Errorf("invalid bus speed %d", hz)
	}
	divider := clockFrequency/hz - 3
	if divider < 0 || divider > 0xFF {
		return fmt.Errorf("bus speed %d out of range", hz)
	}
	return d.transaction(ctx, func(ctx context.Context, port Port) error {
		d.prepare(cmdStatus, 0, 0)
		d.request[3] = paramSetSpeed
		d.request[4] = byte(divider)
		if err := d.exchange(ctx, port); err != nil {
			return err
		}
		if d.response[3] != speedAccepted {
			return fmt.Errorf("speed %d rejected: %w", hz, ErrCommandFailed)
		}
		return nil
	})
}

// checkAddressAck reads the engine status after a write. The bridge accepts
// the write command before the address phase runs, so a nacked address only
// shows up there. The stuck transfer is cancelled before reporting it.
func (d *MCP2221) checkAddressAck(ctx context.Context, port Port, address byte) error {
	d.prepare(cmdStatus, 0, 0)
	if err := d.exchange(ctx, port); err != nil {
		return err
	}
	if d.response[ackStatusByte]&addressNackMask == 0 {
		return nil
	}
	d.prepare(cmdStatus, 0, 0)
	d.request[2] = paramCancelTransfer
	if err := d.exchange(ctx, port); err != nil {
		slog.Debug("could not cancel nacked transfer", "error", err)
	}
	return fmt.Errorf("address %#02x not acknowledged: %w", address, weather.ErrNacked)
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	return &MCP2221Status{
		I2CDataBufferCounter:   int(buffer[13]),
		I2CSpeedDivider:        int(buffer[14]),
		I2CTimeout:             int(buffer[15]),
		ReadPending:            int(buffer[25]),
		CurrentAddress:         hex.EncodeToString(buffer[16:18]),
		LastWriteRequestedSize: binary.LittleEndian.Uint16(buffer[9:11]),
		LastWriteSentSize:      binary.LittleEndian.Uint16(buffer[11:13]),
	}
}

// transaction holds the adapter lock and the device open for fn, bounded by
// the transaction timeout.
func (d *MCP2221) transaction(ctx context.Context, fn func(ctx context.Context, port Port) error) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	port, err := d.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := port.Close(); err != nil {
			slog.Debug("could not close adapter", "error", err)
		}
	}()
	err = fn(ctx, port)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", weather.ErrTimeout, err)
	}
	return err
}

func (d *MCP2221) prepare(cmd, addr byte, n int) {
	resetBuffer(d.request)
	resetBuffer(d.response)
	d.request[0] = cmd
	if cmd == cmdStatus || cmd == cmdGetData {
		return
	}
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(n))
	d.request[3] = addr
}

// command is an exchange whose response status must be OK.
func (d *MCP2221) command(ctx context.Context, port Port) error {
	if err := d.exchange(ctx, port); err != nil {
		return err
	}
	switch d.response[1] {
	case statusOK:
		return nil
	case statusBusy:
		slog.Debug("adapter busy", "command", d.request[0])
		return weather.ErrBusBusy
	}
	return fmt.Errorf("%w: command %#02x status %#02x", ErrCommandFailed, d.request[0], d.response[1])
}

func (d *MCP2221) exchange(ctx context.Context, port Port) error {
	verbose := snsctx.IsVerbose(ctx)
	if verbose {
		slog.Debug("sending message to adapter\n" + hex.Dump(d.request))
	}
	n, err := port.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if err := weather.Sleep.Delay(ctx, d.responseWait); err != nil {
		return err
	}
	n, err = port.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		slog.Debug("read message from adapter\n" + hex.Dump(d.response))
	}
	if d.response[0] != d.request[0] {
		return fmt.Errorf("response %#02x does not echo command %#02x", d.response[0], d.request[0])
	}
	return nil
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}
