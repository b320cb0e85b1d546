package register

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/weather"
	"github.com/mklimuk/weather/i2c"
	"github.com/mklimuk/weather/i2c/i2csim"
)

// MockTransactor is a mock implementation of weather.Transactor using testify/mock
type MockTransactor struct {
	mock.Mock
}

func (m *MockTransactor) WriteTx(ctx context.Context, address byte, header, payload []byte) error {
	args := m.Called(ctx, address, header, payload)
	return args.Error(0)
}

func (m *MockTransactor) ReadTx(ctx context.Context, address, reg byte, buffer []byte) error {
	args := m.Called(ctx, address, reg, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func TestAccess_ReadRegister(t *testing.T) {
	bus := new(MockTransactor)
	stub := []byte{0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00, 0x73, 0x3C}
	bus.On("ReadTx", mock.Anything, byte(0x77), byte(0xF7), mock.Anything).Return(stub, nil).Once()

	regs := New(bus)
	data, err := regs.ReadRegister(context.Background(), 0x77, 0xF7, 8)
	require.NoError(t, err)
	assert.Equal(t, stub, data)
	bus.AssertExpectations(t)
}

func TestAccess_ReadRegisterErrors(t *testing.T) {
	tests := []struct {
		name  string
		cause error
	}{
		{"timeout", weather.ErrTimeout},
		{"nacked", weather.ErrNacked},
		{"unclassified", errors.New("remote I/O error")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockTransactor)
			bus.On("ReadTx", mock.Anything, byte(0x77), byte(0xD0), mock.Anything).Return(nil, tt.cause).Once()

			_, err := New(bus).ReadRegister(context.Background(), 0x77, 0xD0, 1)
			assert.ErrorIs(t, err, weather.ErrCommFailure)
			assert.ErrorIs(t, err, tt.cause, "bus cause stays visible")
		})
	}
}

func TestAccess_ReadRegisterInvalid(t *testing.T) {
	bus := new(MockTransactor)
	_, err := New(bus).ReadRegister(context.Background(), 0x77, 0xD0, 0)
	assert.ErrorIs(t, err, weather.ErrInvalidLength)
	bus.AssertNotCalled(t, "ReadTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAccess_WriteRegisterPolicy(t *testing.T) {
	tests := []struct {
		name     string
		tolerant bool
		cause    error
		wantErr  error
	}{
		{"strict ok", false, nil, nil},
		{"strict nack", false, weather.ErrNacked, weather.ErrCommFailure},
		{"strict timeout", false, weather.ErrTimeout, weather.ErrCommFailure},
		{"tolerant nack", true, weather.ErrNacked, nil},
		{"tolerant unclassified", true, errors.New("write failed"), nil},
		{"tolerant timeout", true, weather.ErrTimeout, weather.ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockTransactor)
			bus.On("WriteTx", mock.Anything, byte(0x77), []byte{0xF4}, []byte{0x25}).Return(tt.cause).Once()

			var opts []Opt
			if tt.tolerant {
				opts = append(opts, WithTolerantWrites())
			}
			err := New(bus, opts...).WriteRegister(context.Background(), 0x77, 0xF4, []byte{0x25})
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			bus.AssertExpectations(t)
		})
	}
}

func TestAccess_OverSimulatedBus(t *testing.T) {
	sim := i2csim.New()
	target := i2csim.NewTarget()
	target.Set(0xD0, 0x60)
	sim.Attach(0x77, target)
	regs := New(i2c.NewBus(sim, i2c.WithTimeout(20*time.Millisecond)))
	ctx := context.Background()

	id, err := regs.ReadRegister(ctx, 0x77, 0xD0, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60}, id)
	assert.Equal(t, "S EE+ D0+ Sr EF+ 60N P", sim.Trace())

	sim.Reset()
	require.NoError(t, regs.WriteRegister(ctx, 0x77, 0xF4, []byte{0x25}))
	assert.Equal(t, "S EE+ F4+ 25+ P", sim.Trace())

	sim.Stall(true)
	_, err = regs.ReadRegister(ctx, 0x77, 0xF7, 8)
	assert.ErrorIs(t, err, weather.ErrCommFailure)
	assert.ErrorIs(t, err, weather.ErrTimeout)
}
