package weather

import (
	"context"
)

// Transactor executes complete bus transactions against a 7-bit device
// address. Implementations own the bus for the duration of one call.
type Transactor interface {
	// WriteTx sends header followed by payload in a single write transaction.
	WriteTx(ctx context.Context, address byte, header, payload []byte) error
	// ReadTx selects register reg and fills buffer using a repeated start.
	ReadTx(ctx context.Context, address, reg byte, buffer []byte) error
}

// RegisterIO is the register level contract a sensor driver depends on.
type RegisterIO interface {
	ReadRegister(ctx context.Context, address, reg byte, n int) ([]byte, error)
	WriteRegister(ctx context.Context, address, reg byte, data []byte) error
}

// MaxAddress is the highest valid 7-bit bus address.
const MaxAddress = 0x7F

// ValidateTransfer checks the parts of a transfer every backend rejects
// before touching the bus.
func ValidateTransfer(address byte, n int) error {
	if address > MaxAddress {
		return ErrInvalidAddress
	}
	if n < 1 {
		return ErrInvalidLength
	}
	return nil
}
