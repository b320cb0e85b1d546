package weather

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommFailure(t *testing.T) {
	assert.Nil(t, CommFailure(nil))

	err := CommFailure(ErrBusBusy)
	assert.ErrorIs(t, err, ErrCommFailure)
	assert.ErrorIs(t, err, ErrBusBusy)
	assert.ErrorIs(t, err, ErrTimeout, "busy bus classifies as a timeout")
	assert.False(t, errors.Is(err, ErrNacked))
}

func TestValidateTransfer(t *testing.T) {
	tests := []struct {
		name    string
		address byte
		n       int
		want    error
	}{
		{"ok", 0x77, 8, nil},
		{"highest address", 0x7F, 1, nil},
		{"wide address", 0x80, 1, ErrInvalidAddress},
		{"empty", 0x77, 0, ErrInvalidLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateTransfer(tt.address, tt.n), tt.want)
		})
	}
}
