// Package bme280sim emulates a BME280 register map on the simulated bus.
package bme280sim

import (
	"sync"

	"github.com/mklimuk/weather/bme280"
	"github.com/mklimuk/weather/i2c/i2csim"
)

// Calibration and Raw are a plausible factory trimming and a room
// condition measurement (25.08 degC, 100653 Pa, 48.29 %RH).
var (
	Calibration = bme280.Calibration{
		T1: 27504, T2: 26435, T3: -1000,
		P1: 36477, P2: -10685, P3: 3024, P4: 2855, P5: 140, P6: -7, P7: 15500, P8: -14600, P9: 6000,
		H1: 75, H2: 362, H3: 0, H4: 324, H5: 50, H6: 30,
	}
	Raw = bme280.RawMeasurement{0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00, 0x73, 0x3C}
)

// data registers after power on
var resetData = []byte{0x80, 0x00, 0x00, 0x80, 0x00, 0x00, 0x80, 0x00}

// Sensor is a BME280 that only knows sleep and forced mode. A forced
// trigger latches the current raw measurement into the data registers and
// drops back to sleep.
type Sensor struct {
	*i2csim.Target
	mx        sync.Mutex
	calib     bme280.Calibration
	raw       bme280.RawMeasurement
	triggers  int
	resets    int
	busyReads int
}

func New(calib bme280.Calibration, raw bme280.RawMeasurement) *Sensor {
	s := &Sensor{
		Target: i2csim.NewTarget(),
		calib:  calib,
		raw:    raw,
	}
	s.powerOn()
	s.Target.OnWrite(s.written)
	s.Target.OnRead(s.reading)
	return s
}

// SetRaw changes the measurement latched by the next trigger.
func (s *Sensor) SetRaw(raw bme280.RawMeasurement) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.raw = raw
}

// Triggers counts forced mode writes to ctrl_meas.
func (s *Sensor) Triggers() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.triggers
}

func (s *Sensor) Resets() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.resets
}

func (s *Sensor) powerOn() {
	tp, h := bme280.EncodeCalibration(s.calib)
	s.Set(bme280.RegCalib00, tp...)
	s.Set(bme280.RegCalib26, h...)
	s.Set(bme280.RegChipID, bme280.ChipID)
	s.Set(bme280.RegReset, 0)
	s.Set(bme280.RegCtrlHum, 0)
	s.Set(bme280.RegStatus, 0)
	s.Set(bme280.RegCtrlMeas, 0)
	s.Set(bme280.RegConfig, 0)
	s.Set(bme280.RegData, resetData...)
}

func (s *Sensor) written(reg, val byte) {
	switch reg {
	case bme280.RegReset:
		if val != bme280.SoftResetCmd {
			s.Set(bme280.RegReset, 0)
			return
		}
		s.mx.Lock()
		s.resets++
		s.busyReads = 1
		s.mx.Unlock()
		s.powerOn()
		// NVM copy in progress until the status has been polled once
		s.Set(bme280.RegStatus, 0x01)
	case bme280.RegCtrlMeas:
		if bme280.Mode(val&0x03) != bme280.ModeForced {
			return
		}
		s.mx.Lock()
		s.triggers++
		raw := s.raw
		s.mx.Unlock()
		s.Set(bme280.RegData, raw[:]...)
		s.Set(bme280.RegCtrlMeas, val&^0x03)
	}
}

func (s *Sensor) reading(reg byte) {
	if reg != bme280.RegStatus {
		return
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.busyReads > 0 {
		s.busyReads--
		return
	}
	s.Set(bme280.RegStatus, 0)
}
