package bme280

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCalibration = Calibration{
	T1: 27504, T2: 26435, T3: -1000,
	P1: 36477, P2: -10685, P3: 3024, P4: 2855, P5: 140, P6: -7, P7: 15500, P8: -14600, P9: 6000,
	H1: 75, H2: 362, H3: 0, H4: 324, H5: 50, H6: 30,
}

var testRaw = RawMeasurement{0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00, 0x73, 0x3C}

func TestRawMeasurement_Fields(t *testing.T) {
	assert.Equal(t, int32(415148), testRaw.Pressure())
	assert.Equal(t, int32(519888), testRaw.Temperature())
	assert.Equal(t, int32(29500), testRaw.Humidity())
}

func TestCalibration_IntegerFormulas(t *testing.T) {
	c := testCalibration
	tFine := c.fineTemperature(519888)
	assert.Equal(t, int32(128422), tFine)
	assert.Equal(t, int32(2508), temperature(tFine))
	assert.Equal(t, uint32(25767233), c.pressure(415148, tFine))
	assert.Equal(t, uint32(49454), c.humidity(29500, tFine))
}

func TestCalibration_Compensate(t *testing.T) {
	r := testCalibration.Compensate(testRaw)
	assert.InDelta(t, 25.08, r.Temperature, 1e-9)
	assert.InDelta(t, 77.144, r.Fahrenheit(), 1e-9)
	assert.InDelta(t, 100653.25390625, r.Pressure, 1e-9)
	assert.InDelta(t, 48.294921875, r.Humidity, 1e-9)
}

func TestCalibration_BlankDoesNotPanic(t *testing.T) {
	var c Calibration
	r := c.Compensate(testRaw)
	assert.Zero(t, r.Pressure)
}

func TestCalibration_HumidityClamp(t *testing.T) {
	c := testCalibration
	tFine := c.fineTemperature(519888)
	assert.Equal(t, uint32(0), c.humidity(0, tFine))
	assert.Equal(t, uint32(419430400>>12), c.humidity(0xFFFF, tFine))
}

func TestParseCalibration(t *testing.T) {
	tp, h := EncodeCalibration(testCalibration)
	require.Len(t, tp, 26)
	require.Len(t, h, 7)
	assert.Equal(t, []byte{0x6A, 0x01, 0x00, 0x14, 0x24, 0x03, 0x1E}, h)

	c, err := ParseCalibration(tp, h)
	require.NoError(t, err)
	assert.Equal(t, testCalibration, *c)
}

func TestParseCalibration_NegativeH4H5(t *testing.T) {
	c, err := ParseCalibration(make([]byte, 26), []byte{0, 0, 0, 0xFF, 0xFF, 0xFF, 0})
	require.NoError(t, err)
	assert.Equal(t, int16(-1), c.H4)
	assert.Equal(t, int16(-1), c.H5)
}

func TestParseCalibration_BadLength(t *testing.T) {
	_, err := ParseCalibration(make([]byte, 24), make([]byte, 7))
	assert.Error(t, err)
}
