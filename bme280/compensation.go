package bme280

import (
	"encoding/binary"
	"fmt"
)

// RawMeasurement is the 0xF7..0xFE burst: pressure (20 bit), temperature
// (20 bit), humidity (16 bit), all big endian.
type RawMeasurement [dataLen]byte

func (r RawMeasurement) Pressure() int32 {
	return int32(r[0])<<12 | int32(r[1])<<4 | int32(r[2])>>4
}

func (r RawMeasurement) Temperature() int32 {
	return int32(r[3])<<12 | int32(r[4])<<4 | int32(r[5])>>4
}

func (r RawMeasurement) Humidity() int32 {
	return int32(binary.BigEndian.Uint16(r[6:8]))
}

// Reading is one compensated measurement.
type Reading struct {
	// Temperature in degrees Celsius.
	Temperature float64 `json:"temperature"`
	// Pressure in Pascal.
	Pressure float64 `json:"pressure"`
	// Humidity in %RH.
	Humidity float64 `json:"humidity"`
}

func (r Reading) Fahrenheit() float64 {
	return r.Temperature*9/5 + 32
}

// Compensator turns raw ADC codes into physical units.
type Compensator interface {
	Compensate(raw RawMeasurement) Reading
}

// CompensatorFunc adapts a function to the Compensator interface.
type CompensatorFunc func(raw RawMeasurement) Reading

func (f CompensatorFunc) Compensate(raw RawMeasurement) Reading {
	return f(raw)
}

var _ Compensator = &Calibration{}

// Calibration holds the factory trimming parameters dig_T1..dig_H6.
type Calibration struct {
	T1 uint16
	T2 int16
	T3 int16

	P1 uint16
	P2 int16
	P3 int16
	P4 int16
	P5 int16
	P6 int16
	P7 int16
	P8 int16
	P9 int16

	H1 uint8
	H2 int16
	H3 uint8
	H4 int16
	H5 int16
	H6 int8
}

// ParseCalibration decodes the 0x88..0xA1 and 0xE1..0xE7 blocks.
func ParseCalibration(tp, h []byte) (*Calibration, error) {
	if len(tp) != calib00Len || len(h) != calib26Len {
		return nil, fmt.Errorf("bme280: calibration blocks must be %d and %d bytes, got %d and %d",
			calib00Len, calib26Len, len(tp), len(h))
	}
	le := binary.LittleEndian
	c := &Calibration{
		T1: le.Uint16(tp[0:2]),
		T2: int16(le.Uint16(tp[2:4])),
		T3: int16(le.Uint16(tp[4:6])),
		P1: le.Uint16(tp[6:8]),
		P2: int16(le.Uint16(tp[8:10])),
		P3: int16(le.Uint16(tp[10:12])),
		P4: int16(le.Uint16(tp[12:14])),
		P5: int16(le.Uint16(tp[14:16])),
		P6: int16(le.Uint16(tp[16:18])),
		P7: int16(le.Uint16(tp[18:20])),
		P8: int16(le.Uint16(tp[20:22])),
		P9: int16(le.Uint16(tp[22:24])),
		// tp[24] (0xA0) is unused
		H1: tp[25],
		H2: int16(le.Uint16(h[0:2])),
		H3: h[2],
		// dig_H4 and dig_H5 are 12 bit values sharing the nibbles of 0xE5
		H4: int16(int8(h[3]))<<4 | int16(h[4]&0x0F),
		H5: int16(int8(h[5]))<<4 | int16(h[4]>>4),
		H6: int8(h[6]),
	}
	return c, nil
}

// EncodeCalibration is the inverse of ParseCalibration, used to preload
// simulated devices.
func EncodeCalibration(c Calibration) (tp, h []byte) {
	le := binary.LittleEndian
	tp = make([]byte, calib00Len)
	words := []uint16{
		c.T1, uint16(c.T2), uint16(c.T3),
		c.P1, uint16(c.P2), uint16(c.P3), uint16(c.P4), uint16(c.P5),
		uint16(c.P6), uint16(c.P7), uint16(c.P8), uint16(c.P9),
	}
	for i, w := range words {
		le.PutUint16(tp[2*i:], w)
	}
	tp[25] = c.H1
	h = make([]byte, calib26Len)
	le.PutUint16(h[0:2], uint16(c.H2))
	h[2] = c.H3
	h[3] = byte(c.H4 >> 4)
	h[4] = byte(c.H5&0x0F)<<4 | byte(c.H4&0x0F)
	h[5] = byte(c.H5 >> 4)
	h[6] = byte(c.H6)
	return tp, h
}

// Compensate applies the datasheet integer formulas.
func (c *Calibration) Compensate(raw RawMeasurement) Reading {
	tFine := c.fineTemperature(raw.Temperature())
	return Reading{
		Temperature: float64(temperature(tFine)) / 100,
		Pressure:    float64(c.pressure(raw.Pressure(), tFine)) / 256,
		Humidity:    float64(c.humidity(raw.Humidity(), tFine)) / 1024,
	}
}

func (c *Calibration) fineTemperature(adc int32) int32 {
	t1 := int32(c.T1)
	var1 := (((adc >> 3) - (t1 << 1)) * int32(c.T2)) >> 11
	var2 := (((((adc >> 4) - t1) * ((adc >> 4) - t1)) >> 12) * int32(c.T3)) >> 14
	return var1 + var2
}

// temperature is in 0.01 degC.
func temperature(tFine int32) int32 {
	return (tFine*5 + 128) >> 8
}

// pressure is in Pa as unsigned Q24.8.
func (c *Calibration) pressure(adc, tFine int32) uint32 {
	var1 := int64(tFine) - 128000
	var2 := var1 * var1 * int64(c.P6)
	var2 += (var1 * int64(c.P5)) << 17
	var2 += int64(c.P4) << 35
	var1 = ((var1 * var1 * int64(c.P3)) >> 8) + ((var1 * int64(c.P2)) << 12)
	var1 = (((int64(1) << 47) + var1) * int64(c.P1)) >> 33
	if var1 == 0 {
		// avoid division by zero on blank calibration
		return 0
	}
	p := int64(1048576 - adc)
	p = (((p << 31) - var2) * 3125) / var1
	var1 = (int64(c.P9) * (p >> 13) * (p >> 13)) >> 25
	var2 = (int64(c.P8) * p) >> 19
	p = ((p + var1 + var2) >> 8) + (int64(c.P7) << 4)
	return uint32(p)
}

// humidity is in %RH as unsigned Q22.10.
func (c *Calibration) humidity(adc, tFine int32) uint32 {
	v := tFine - 76800
	v = ((((adc << 14) - (int32(c.H4) << 20) - (int32(c.H5) * v)) + 16384) >> 15) *
		(((((((v*int32(c.H6))>>10)*(((v*int32(c.H3))>>11)+32768))>>10)+2097152)*int32(c.H2) + 8192) >> 14)
	v -= ((((v >> 15) * (v >> 15)) >> 7) * int32(c.H1)) >> 4
	if v < 0 {
		v = 0
	}
	if v > 419430400 {
		v = 419430400
	}
	return uint32(v >> 12)
}
