// Package device owns the serial link to a microcontroller sitting in
// bootloader download mode. A Session wraps a Programmer with retry, backoff
// and per-transfer timeouts, and enforces that at most one live session
// exists per port. The Session knows nothing about partitions; callers
// validate offsets and lengths before invoking it.
package device

import (
	"context"

	"flashvault/datamodel/chip"
)

// Programmer is the download-mode capability boundary: chip identification
// and offset-addressed flash transfers. The shipped implementation is
// romclient.Client; tests substitute in-memory fakes.
type Programmer interface {
	// Handshake negotiates download-mode communication. A device that is not
	// in download mode fails the handshake.
	Handshake(ctx context.Context) error

	// ChipInfo reads the device identification record.
	ChipInfo(ctx context.Context) (*chip.Info, error)

	// ReadFlash reads length bytes starting at offset.
	ReadFlash(ctx context.Context, offset uint64, length uint64) ([]byte, error)

	// WriteFlash writes data starting at offset.
	WriteFlash(ctx context.Context, offset uint64, data []byte) error

	// EraseFlash erases the entire flash.
	EraseFlash(ctx context.Context) error

	// Close releases the underlying transport.
	Close() error
}
