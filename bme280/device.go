// Package bme280 drives a Bosch BME280 in forced mode over register access.
package bme280

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mklimuk/weather"
)

const (
	AddressPrimary   byte = 0x77
	AddressSecondary byte = 0x76
)

// Interface is the physical interface the sensor is wired on.
type Interface int

const (
	InterfaceI2C Interface = iota
	InterfaceSPI
)

func (i Interface) String() string {
	switch i {
	case InterfaceI2C:
		return "i2c"
	case InterfaceSPI:
		return "spi"
	}
	return fmt.Sprintf("Interface(%d)", int(i))
}

var (
	ErrUnsupportedInterface = errors.New("bme280: only the I2C interface is supported")
	ErrNotInitialized       = errors.New("bme280: device not initialized")
	ErrUnexpectedChip       = errors.New("bme280: unexpected chip id")
	ErrResetTimeout         = errors.New("bme280: NVM copy did not finish after reset")
)

const (
	chipIDAttempts   = 5
	chipIDRetryDelay = time.Millisecond
	resetDelay       = 2 * time.Millisecond
	resetPolls       = 10
)

type Opts struct {
	Address     byte
	Interface   Interface
	Compensator Compensator
}

type Opt func(*Opts)

func WithAddress(addr byte) Opt {
	return func(o *Opts) {
		o.Address = addr
	}
}

func WithInterface(i Interface) Opt {
	return func(o *Opts) {
		o.Interface = i
	}
}

// WithCompensator replaces the calibration based compensation.
func WithCompensator(c Compensator) Opt {
	return func(o *Opts) {
		o.Compensator = c
	}
}

// Device is one sensor session bound to a bus address. It is not safe for
// concurrent use.
type Device struct {
	regs     weather.RegisterIO
	delay    weather.Delayer
	addr     byte
	settings Settings
	comp     Compensator
	calib    *Calibration
	fixed    bool
}

func New(regs weather.RegisterIO, delay weather.Delayer, opts ...Opt) (*Device, error) {
	config := Opts{Address: AddressPrimary, Interface: InterfaceI2C}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Interface != InterfaceI2C {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInterface, config.Interface)
	}
	if config.Address > weather.MaxAddress {
		return nil, weather.ErrInvalidAddress
	}
	if delay == nil {
		delay = weather.Sleep
	}
	return &Device{
		regs:     regs,
		delay:    delay,
		addr:     config.Address,
		settings: DefaultSettings,
		comp:     config.Compensator,
		fixed:    config.Compensator != nil,
	}, nil
}

func (d *Device) Address() byte {
	return d.addr
}

// Settings returns the settings last pushed by Configure.
func (d *Device) Settings() Settings {
	return d.settings
}

// Calibration is nil until Init succeeds.
func (d *Device) Calibration() *Calibration {
	return d.calib
}

func (d *Device) ChipID(ctx context.Context) (byte, error) {
	id, err := d.regs.ReadRegister(ctx, d.addr, regChipID, 1)
	if err != nil {
		return 0, fmt.Errorf("bme280: could not read chip id: %w", err)
	}
	return id[0], nil
}

// Init checks the chip id, soft resets the device and loads calibration.
func (d *Device) Init(ctx context.Context) error {
	if err := d.probe(ctx); err != nil {
		return err
	}
	if err := d.reset(ctx); err != nil {
		return err
	}
	tp, err := d.regs.ReadRegister(ctx, d.addr, regCalib00, calib00Len)
	if err != nil {
		return fmt.Errorf("bme280: could not read calibration: %w", err)
	}
	h, err := d.regs.ReadRegister(ctx, d.addr, regCalib26, calib26Len)
	if err != nil {
		return fmt.Errorf("bme280: could not read humidity calibration: %w", err)
	}
	calib, err := ParseCalibration(tp, h)
	if err != nil {
		return err
	}
	d.calib = calib
	if !d.fixed {
		d.comp = calib
	}
	return nil
}

func (d *Device) probe(ctx context.Context) error {
	var err error
	for i := 0; i < chipIDAttempts; i++ {
		var id byte
		id, err = d.ChipID(ctx)
		if err == nil {
			if id != chipID {
				return fmt.Errorf("%w: %#02x at %#02x", ErrUnexpectedChip, id, d.addr)
			}
			return nil
		}
		if derr := d.delay.Delay(ctx, chipIDRetryDelay); derr != nil {
			return derr
		}
	}
	return err
}

func (d *Device) reset(ctx context.Context) error {
	if err := d.regs.WriteRegister(ctx, d.addr, regReset, []byte{softResetCmd}); err != nil {
		return fmt.Errorf("bme280: soft reset failed: %w", err)
	}
	for i := 0; i < resetPolls; i++ {
		if err := d.delay.Delay(ctx, resetDelay); err != nil {
			return err
		}
		status, err := d.regs.ReadRegister(ctx, d.addr, regStatus, 1)
		if err != nil {
			return fmt.Errorf("bme280: could not read status: %w", err)
		}
		if status[0]&statusImUpdate == 0 {
			return nil
		}
	}
	return ErrResetTimeout
}

// Configure pushes oversampling and filter settings, leaving the device in
// sleep mode. ctrl_hum only takes effect after the ctrl_meas write.
func (d *Device) Configure(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	writes := []struct {
		reg byte
		val byte
	}{
		{regCtrlHum, byte(s.Humidity)},
		{regCtrlMeas, s.ctrlMeas(ModeSleep)},
		{regConfig, byte(s.Filter) << 2},
	}
	for _, w := range writes {
		if err := d.regs.WriteRegister(ctx, d.addr, w.reg, []byte{w.val}); err != nil {
			return fmt.Errorf("bme280: could not write register %#02x: %w", w.reg, err)
		}
	}
	d.settings = s
	return nil
}

// TriggerForced starts exactly one measurement. The device returns to sleep
// on its own.
func (d *Device) TriggerForced(ctx context.Context) error {
	err := d.regs.WriteRegister(ctx, d.addr, regCtrlMeas, []byte{d.settings.ctrlMeas(ModeForced)})
	if err != nil {
		return fmt.Errorf("bme280: could not trigger measurement: %w", err)
	}
	return nil
}

// Measuring reports whether a conversion is still running.
func (d *Device) Measuring(ctx context.Context) (bool, error) {
	status, err := d.regs.ReadRegister(ctx, d.addr, regStatus, 1)
	if err != nil {
		return false, fmt.Errorf("bme280: could not read status: %w", err)
	}
	return status[0]&statusMeasuring != 0, nil
}

func (d *Device) ReadRaw(ctx context.Context) (RawMeasurement, error) {
	var raw RawMeasurement
	data, err := d.regs.ReadRegister(ctx, d.addr, regData, dataLen)
	if err != nil {
		return raw, fmt.Errorf("bme280: could not read measurement: %w", err)
	}
	copy(raw[:], data)
	return raw, nil
}

// Read fetches the last measurement and compensates it.
func (d *Device) Read(ctx context.Context) (Reading, error) {
	if d.comp == nil {
		return Reading{}, ErrNotInitialized
	}
	raw, err := d.ReadRaw(ctx)
	if err != nil {
		return Reading{}, err
	}
	return d.comp.Compensate(raw), nil
}

// MeasurementTime is the settle time for the current settings.
func (d *Device) MeasurementTime() time.Duration {
	return MeasurementTime(d.settings)
}
