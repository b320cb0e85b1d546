// Package emit holds the sinks a measurement cycle reports to.
package emit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/mklimuk/weather/acquisition"
	"github.com/mklimuk/weather/bme280"
)

// Unit selects the temperature scale printed by Console.
type Unit string

const (
	Celsius    Unit = "C"
	Fahrenheit Unit = "F"
)

func ParseUnit(s string) (Unit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "CELSIUS":
		return Celsius, nil
	case "F", "FAHRENHEIT":
		return Fahrenheit, nil
	}
	return "", fmt.Errorf("unknown temperature unit %q", s)
}

var _ acquisition.Emitter = &Console{}

// Console prints one line per reading, e.g.
// "temp 77.14F, p 100653 Pa, hum 48.29 %".
type Console struct {
	mx    sync.Mutex
	out   io.Writer
	unit  Unit
	value func(a ...interface{}) string
}

func NewConsole(out io.Writer, unit Unit) *Console {
	if out == nil {
		out = os.Stdout
	}
	if unit == "" {
		unit = Fahrenheit
	}
	return &Console{
		out:   out,
		unit:  unit,
		value: color.New(color.FgHiWhite).SprintFunc(),
	}
}

func (c *Console) Emit(ctx context.Context, r bme280.Reading) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	_, err := fmt.Fprintln(c.out, c.Format(r))
	return err
}

func (c *Console) Format(r bme280.Reading) string {
	temp := r.Temperature
	if c.unit == Fahrenheit {
		temp = r.Fahrenheit()
	}
	return fmt.Sprintf("temp %s, p %s Pa, hum %s %%",
		c.value(fmt.Sprintf("%.2f%s", temp, c.unit)),
		c.value(fmt.Sprintf("%.0f", r.Pressure)),
		c.value(fmt.Sprintf("%.2f", r.Humidity)))
}

var _ acquisition.Emitter = &Log{}

// Log writes a structured record per reading.
type Log struct {
	log   *slog.Logger
	level slog.Level
}

func NewLog(logger *slog.Logger, level slog.Level) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{log: logger, level: level}
}

func (l *Log) Emit(ctx context.Context, r bme280.Reading) error {
	l.log.Log(ctx, l.level, "measurement",
		"temperature", r.Temperature,
		"pressure", r.Pressure,
		"humidity", r.Humidity)
	return nil
}

// Multi fans a reading out to every emitter. All emitters are called even
// when some fail.
type Multi []acquisition.Emitter

func (m Multi) Emit(ctx context.Context, r bme280.Reading) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
