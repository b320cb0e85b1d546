package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/weather"
)

// fakePort answers each report with the next scripted response. A missing
// response echoes the command with an OK status.
type fakePort struct {
	requests  [][]byte
	responses [][]byte
	closed    int
	hang      bool
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.requests = append(p.requests, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	resp := make([]byte, reportSize)
	if len(p.responses) > 0 {
		copy(resp, p.responses[0])
		p.responses = p.responses[1:]
	} else {
		resp[0] = p.requests[len(p.requests)-1][0]
	}
	return copy(b, resp), nil
}

func (p *fakePort) Close() error {
	p.closed++
	return nil
}

func newTestAdapter(port *fakePort, opts ...Opt) *MCP2221 {
	opts = append([]Opt{
		WithResponseWait(0),
		WithPort(func() (Port, error) { return port, nil }),
	}, opts...)
	return NewMCP2221(opts...)
}

func report(b ...byte) []byte {
	r := make([]byte, reportSize)
	copy(r, b)
	return r
}

func TestMCP2221_WriteTx(t *testing.T) {
	port := &fakePort{}
	d := newTestAdapter(port)
	require.NoError(t, d.WriteTx(context.Background(), 0x77, []byte{0xF4}, []byte{0x25, 0x26}))

	require.Len(t, port.requests, 2)
	assert.Equal(t, report(0x90, 0x03, 0x00, 0xEE, 0xF4, 0x25, 0x26), port.requests[0])
	assert.Equal(t, report(0x10), port.requests[1], "address ack checked through status")
	assert.Equal(t, 1, port.closed)
}

func TestMCP2221_WriteAddressNack(t *testing.T) {
	status := report(0x10)
	status[20] = 0x40
	port := &fakePort{responses: [][]byte{report(0x90), status}}
	d := newTestAdapter(port)
	err := d.WriteTx(context.Background(), 0x76, []byte{0xF4}, []byte{0x25})

	assert.ErrorIs(t, err, weather.ErrNacked)
	assert.ErrorContains(t, err, "address 0x76 not acknowledged")
	require.Len(t, port.requests, 3)
	assert.Equal(t, report(0x10, 0x00, 0x10), port.requests[2], "nacked transfer is cancelled")
}

func TestMCP2221_ReadTx(t *testing.T) {
	stub := []byte{0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00, 0x73, 0x3C}
	port := &fakePort{responses: [][]byte{
		report(0x94, 0x00),
		report(0x93, 0x00),
		report(append([]byte{0x40, 0x00, 0x00, 0x08}, stub...)...),
	}}
	d := newTestAdapter(port)
	buf := make([]byte, 8)
	require.NoError(t, d.ReadTx(context.Background(), 0x77, 0xF7, buf))

	assert.Equal(t, stub, buf)
	require.Len(t, port.requests, 3)
	assert.Equal(t, report(0x94, 0x01, 0x00, 0xEE, 0xF7), port.requests[0], "register select without stop")
	assert.Equal(t, report(0x93, 0x08, 0x00, 0xEF), port.requests[1], "read with repeated start")
	assert.Equal(t, report(0x40), port.requests[2])
}

func TestMCP2221_Errors(t *testing.T) {
	tests := []struct {
		name      string
		responses [][]byte
		want      error
	}{
		{"busy engine", [][]byte{report(0x94, 0x01)}, weather.ErrTimeout},
		{"engine read error", [][]byte{report(0x94), report(0x93), report(0x40, 0x41)}, weather.ErrNacked},
		{"unknown status", [][]byte{report(0x94, 0x07)}, ErrCommandFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &fakePort{responses: tt.responses}
			err := newTestAdapter(port).ReadTx(context.Background(), 0x77, 0xD0, make([]byte, 1))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, port.closed)
		})
	}
}

func TestMCP2221_BusyIsBusBusy(t *testing.T) {
	port := &fakePort{responses: [][]byte{report(0x90, 0x01)}}
	err := newTestAdapter(port).WriteTx(context.Background(), 0x77, []byte{0xF4}, []byte{0x25})
	assert.ErrorIs(t, err, weather.ErrBusBusy)
}

func TestMCP2221_DataSizeMismatch(t *testing.T) {
	port := &fakePort{responses: [][]byte{report(0x94), report(0x93), report(0x40, 0x00, 0x00, 127)}}
	err := newTestAdapter(port).ReadTx(context.Background(), 0x77, 0xD0, make([]byte, 2))
	assert.ErrorContains(t, err, "invalid data size")
}

func TestMCP2221_Timeout(t *testing.T) {
	port := &fakePort{}
	d := newTestAdapter(port, WithResponseWait(time.Second), WithTimeout(10*time.Millisecond))
	err := d.WriteTx(context.Background(), 0x77, []byte{0xF4}, []byte{0x25})
	assert.ErrorIs(t, err, weather.ErrTimeout)
}

func TestMCP2221_InvalidRequests(t *testing.T) {
	port := &fakePort{}
	d := newTestAdapter(port)
	ctx := context.Background()
	assert.ErrorIs(t, d.ReadTx(ctx, 0x77, 0x88, nil), weather.ErrInvalidLength)
	assert.ErrorIs(t, d.ReadTx(ctx, 0x77, 0x88, make([]byte, 61)), weather.ErrInvalidLength)
	assert.ErrorIs(t, d.WriteTx(ctx, 0x80, []byte{0xF4}, nil), weather.ErrInvalidAddress)
	assert.Empty(t, port.requests)
}

func TestMCP2221_OpenError(t *testing.T) {
	d := NewMCP2221(WithPort(func() (Port, error) { return nil, ErrDeviceNotFound }))
	err := d.WriteTx(context.Background(), 0x77, []byte{0xF4}, nil)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestMCP2221_StatusAndRelease(t *testing.T) {
	status := report(0x10)
	status[9], status[10] = 0x08, 0x00
	status[11], status[12] = 0x03, 0x00
	status[13] = 2
	status[14] = 117
	status[15] = 0x7F
	status[16], status[17] = 0xEE, 0x00
	status[25] = 1
	want := &MCP2221Status{
		I2CDataBufferCounter:   2,
		I2CSpeedDivider:        117,
		I2CTimeout:             0x7F,
		CurrentAddress:         "ee00",
		LastWriteRequestedSize: 8,
		LastWriteSentSize:      3,
		ReadPending:            1,
	}

	port := &fakePort{responses: [][]byte{status, status}}
	d := newTestAdapter(port)
	got, err := d.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = d.ReleaseBus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, report(0x10, 0x00, 0x10), port.requests[1])
}

func TestMCP2221_SetSpeed(t *testing.T) {
	port := &fakePort{responses: [][]byte{report(0x10, 0x00, 0x00, 0x20)}}
	d := newTestAdapter(port)
	require.NoError(t, d.SetSpeed(context.Background(), 100_000))
	assert.Equal(t, report(0x10, 0x00, 0x00, 0x20, 117), port.requests[0])

	port.responses = [][]byte{report(0x10, 0x00, 0x00, 0x21)}
	assert.ErrorIs(t, d.SetSpeed(context.Background(), 100_000), ErrCommandFailed)
	assert.Error(t, d.SetSpeed(context.Background(), 10))
}

func TestMCP2221_EchoMismatch(t *testing.T) {
	port := &fakePort{responses: [][]byte{report(0x40)}}
	err := newTestAdapter(port).WriteTx(context.Background(), 0x77, []byte{0xF4}, nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, weather.ErrTimeout))
}
