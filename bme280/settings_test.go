package bme280

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		want     string
	}{
		{"defaults", DefaultSettings, ""},
		{"all channels bad", Settings{Humidity: 6, Pressure: 7, Temperature: 8}, "bme280: invalid humidity oversampling 6"},
		{"pressure and temperature bad", Settings{Pressure: 7, Temperature: 8}, "bme280: invalid pressure oversampling 7"},
		{"filter bad", Settings{Filter: 5}, "bme280: invalid filter 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// several passes so an unordered walk would show up
			for range 20 {
				err := tt.settings.Validate()
				if tt.want == "" {
					assert.NoError(t, err)
					continue
				}
				assert.EqualError(t, err, tt.want)
			}
		})
	}
}
