// Package config loads the weather station configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/weather"
	"github.com/mklimuk/weather/bme280"
	"github.com/mklimuk/weather/emit"
	"github.com/mklimuk/weather/emit/mqtt"
	"github.com/mklimuk/weather/storage/sqlite"
)

// Bus adapters understood by the CLI.
const (
	AdapterLinux   = "linux"
	AdapterGPIO    = "gpio"
	AdapterMCP2221 = "mcp2221"
	AdapterNanoPi  = "nanopi"
	AdapterSim     = "sim"
)

var adapters = []string{AdapterLinux, AdapterGPIO, AdapterMCP2221, AdapterNanoPi, AdapterSim}

type Config struct {
	Bus    Bus    `yaml:"bus"`
	Sensor Sensor `yaml:"sensor"`
	Output Output `yaml:"output"`
}

type Bus struct {
	Adapter string `yaml:"adapter"`
	// Device is the i2c-dev name for the linux adapter, e.g. "/dev/i2c-1".
	Device string `yaml:"device"`
	// Number is the gobot bus number for the nanopi adapter, -1 for default.
	Number    int           `yaml:"number"`
	SCL       string        `yaml:"scl"`
	SDA       string        `yaml:"sda"`
	Frequency int           `yaml:"frequency"`
	Timeout   time.Duration `yaml:"timeout"`
	// TolerantWrites swallows non-timeout write failures.
	TolerantWrites bool `yaml:"tolerant_writes"`
}

type Sensor struct {
	Address     uint8         `yaml:"address"`
	Humidity    string        `yaml:"humidity"`
	Pressure    string        `yaml:"pressure"`
	Temperature string        `yaml:"temperature"`
	Filter      string        `yaml:"filter"`
	Settle      time.Duration `yaml:"settle"`
	Interval    time.Duration `yaml:"interval"`
}

type Output struct {
	Unit    string         `yaml:"unit"`
	Console bool           `yaml:"console"`
	Log     bool           `yaml:"log"`
	MQTT    *mqtt.Config   `yaml:"mqtt"`
	Metrics *Metrics       `yaml:"metrics"`
	History *sqlite.Config `yaml:"history"`
}

type Metrics struct {
	Listen string `yaml:"listen"`
}

// Default is a station on /dev/i2c-1: address 0x77, indoor navigation
// oversampling, 100 kHz clock and a 1 s bus timeout.
func Default() Config {
	return Config{
		Bus: Bus{
			Adapter:   AdapterLinux,
			Device:    "/dev/i2c-1",
			Number:    -1,
			SCL:       "GPIO19",
			SDA:       "GPIO18",
			Frequency: 100_000,
			Timeout:   time.Second,
		},
		Sensor: Sensor{
			Address:     bme280.AddressPrimary,
			Humidity:    bme280.DefaultSettings.Humidity.String(),
			Pressure:    bme280.DefaultSettings.Pressure.String(),
			Temperature: bme280.DefaultSettings.Temperature.String(),
			Filter:      bme280.DefaultSettings.Filter.String(),
		},
		Output: Output{
			Unit:    string(emit.Fahrenheit),
			Console: true,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Decode(data); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Decode merges YAML data into cfg. Unknown keys are rejected.
func (cfg *Config) Decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (cfg Config) Validate() error {
	var errs []error
	if !slices.Contains(adapters, cfg.Bus.Adapter) {
		errs = append(errs, fmt.Errorf("unknown bus adapter %q", cfg.Bus.Adapter))
	}
	if cfg.Bus.Frequency <= 0 {
		errs = append(errs, fmt.Errorf("bus frequency must be positive, got %d", cfg.Bus.Frequency))
	}
	if cfg.Bus.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("bus timeout must be positive, got %s", cfg.Bus.Timeout))
	}
	if cfg.Bus.Adapter == AdapterGPIO && (cfg.Bus.SCL == "" || cfg.Bus.SDA == "") {
		errs = append(errs, errors.New("gpio adapter needs scl and sda pins"))
	}
	if cfg.Sensor.Address > weather.MaxAddress {
		errs = append(errs, fmt.Errorf("sensor address %#02x: %w", cfg.Sensor.Address, weather.ErrInvalidAddress))
	}
	if cfg.Sensor.Settle < 0 || cfg.Sensor.Interval < 0 {
		errs = append(errs, errors.New("settle and interval must not be negative"))
	}
	if _, err := cfg.Settings(); err != nil {
		errs = append(errs, err)
	}
	if _, err := emit.ParseUnit(cfg.Output.Unit); err != nil {
		errs = append(errs, err)
	}
	if cfg.Output.MQTT != nil && cfg.Output.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt output needs a broker"))
	}
	if cfg.Output.Metrics != nil && cfg.Output.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics output needs a listen address"))
	}
	if cfg.Output.History != nil && cfg.Output.History.Source == "" {
		errs = append(errs, errors.New("history output needs a source"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Settings converts the sensor section to device settings.
func (cfg Config) Settings() (bme280.Settings, error) {
	var s bme280.Settings
	var err error
	if s.Humidity, err = bme280.ParseOversampling(cfg.Sensor.Humidity); err != nil {
		return s, fmt.Errorf("humidity: %w", err)
	}
	if s.Pressure, err = bme280.ParseOversampling(cfg.Sensor.Pressure); err != nil {
		return s, fmt.Errorf("pressure: %w", err)
	}
	if s.Temperature, err = bme280.ParseOversampling(cfg.Sensor.Temperature); err != nil {
		return s, fmt.Errorf("temperature: %w", err)
	}
	if s.Filter, err = bme280.ParseFilter(cfg.Sensor.Filter); err != nil {
		return s, err
	}
	return s, nil
}
