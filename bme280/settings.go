package bme280

import (
	"fmt"
	"strings"
	"time"
)

// Oversampling is the osrs_x field value.
type Oversampling byte

const (
	OversamplingSkipped Oversampling = iota
	Oversampling1X
	Oversampling2X
	Oversampling4X
	Oversampling8X
	Oversampling16X
)

var oversamplingNames = []string{"skip", "1x", "2x", "4x", "8x", "16x"}

func (o Oversampling) String() string {
	if int(o) < len(oversamplingNames) {
		return oversamplingNames[o]
	}
	return fmt.Sprintf("Oversampling(%d)", byte(o))
}

// Factor returns the number of samples averaged, 0 when skipped.
func (o Oversampling) Factor() int {
	if o == OversamplingSkipped || o > Oversampling16X {
		return 0
	}
	return 1 << (o - 1)
}

// ParseOversampling accepts "skip", "off", "1x".."16x" or plain factors.
func ParseOversampling(s string) (Oversampling, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "off", "skip", "skipped", "0":
		return OversamplingSkipped, nil
	}
	v = strings.TrimSuffix(v, "x")
	for i, name := range oversamplingNames {
		if strings.TrimSuffix(name, "x") == v {
			return Oversampling(i), nil
		}
	}
	return 0, fmt.Errorf("invalid oversampling %q", s)
}

// Filter is the IIR filter coefficient selection.
type Filter byte

const (
	FilterOff Filter = iota
	Filter2
	Filter4
	Filter8
	Filter16
)

var filterNames = []string{"off", "2", "4", "8", "16"}

func (f Filter) String() string {
	if int(f) < len(filterNames) {
		return filterNames[f]
	}
	return fmt.Sprintf("Filter(%d)", byte(f))
}

func ParseFilter(s string) (Filter, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "0" || v == "1" {
		return FilterOff, nil
	}
	for i, name := range filterNames {
		if name == v {
			return Filter(i), nil
		}
	}
	return 0, fmt.Errorf("invalid filter coefficient %q", s)
}

// Mode is the ctrl_meas power mode field.
type Mode byte

const (
	ModeSleep  Mode = 0b00
	ModeForced Mode = 0b01
	ModeNormal Mode = 0b11
)

// Settings are the acquisition settings pushed by Configure.
type Settings struct {
	Humidity    Oversampling
	Pressure    Oversampling
	Temperature Oversampling
	Filter      Filter
}

// DefaultSettings is the datasheet's indoor navigation profile.
var DefaultSettings = Settings{
	Humidity:    Oversampling1X,
	Pressure:    Oversampling16X,
	Temperature: Oversampling2X,
	Filter:      Filter16,
}

func (s Settings) Validate() error {
	channels := []struct {
		name string
		osr  Oversampling
	}{
		{"humidity", s.Humidity},
		{"pressure", s.Pressure},
		{"temperature", s.Temperature},
	}
	for _, ch := range channels {
		if ch.osr > Oversampling16X {
			return fmt.Errorf("bme280: invalid %s oversampling %d", ch.name, ch.osr)
		}
	}
	if s.Filter > Filter16 {
		return fmt.Errorf("bme280: invalid filter %d", s.Filter)
	}
	return nil
}

func (s Settings) ctrlMeas(mode Mode) byte {
	return byte(s.Temperature)<<5 | byte(s.Pressure)<<2 | byte(mode)
}

// MeasurementTime is the datasheet maximum duration of one forced
// measurement with s.
func MeasurementTime(s Settings) time.Duration {
	us := 1250 + 2300*s.Temperature.Factor()
	if f := s.Pressure.Factor(); f > 0 {
		us += 2300*f + 575
	}
	if f := s.Humidity.Factor(); f > 0 {
		us += 2300*f + 575
	}
	return time.Duration(us) * time.Microsecond
}
