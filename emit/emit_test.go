package emit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/weather/acquisition"
	"github.com/mklimuk/weather/bme280"
)

var reading = bme280.Reading{Temperature: 25.08, Pressure: 100653.25390625, Humidity: 48.294921875}

func TestConsole_Emit(t *testing.T) {
	color.NoColor = true
	tests := []struct {
		unit Unit
		line string
	}{
		{Fahrenheit, "temp 77.14F, p 100653 Pa, hum 48.29 %\n"},
		{Celsius, "temp 25.08C, p 100653 Pa, hum 48.29 %\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.unit), func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, NewConsole(&out, tt.unit).Emit(context.Background(), reading))
			assert.Equal(t, tt.line, out.String())
		})
	}
}

func TestParseUnit(t *testing.T) {
	u, err := ParseUnit("celsius")
	require.NoError(t, err)
	assert.Equal(t, Celsius, u)
	u, err = ParseUnit(" f ")
	require.NoError(t, err)
	assert.Equal(t, Fahrenheit, u)
	_, err = ParseUnit("K")
	assert.Error(t, err)
}

func TestLog_Emit(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	require.NoError(t, NewLog(logger, slog.LevelInfo).Emit(context.Background(), reading))
	assert.Contains(t, out.String(), "msg=measurement")
	assert.Contains(t, out.String(), "temperature=25.08")
	assert.Contains(t, out.String(), "humidity=48.294921875")
}

func TestMulti_Emit(t *testing.T) {
	first := errors.New("first")
	var calls int
	ok := acquisition.EmitterFunc(func(ctx context.Context, r bme280.Reading) error {
		calls++
		return nil
	})
	failing := acquisition.EmitterFunc(func(ctx context.Context, r bme280.Reading) error {
		calls++
		return first
	})
	err := Multi{failing, ok, ok}.Emit(context.Background(), reading)
	assert.ErrorIs(t, err, first)
	assert.Equal(t, 3, calls)

	assert.NoError(t, Multi{ok}.Emit(context.Background(), reading))
	assert.NoError(t, Multi{}.Emit(context.Background(), reading))
}
