package device

import (
	"errors"
	"fmt"
)

var ErrWrongBootMode = errors.New("device did not answer the download-mode handshake")
var ErrPortBusy = errors.New("port already has a live session")

// ConnectError reports a failure to establish the serial link itself, before
// any protocol exchange took place.
type ConnectError struct {
	Port string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Port, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IOError is a flash transfer that still failed after the configured retry
// budget was exhausted. Offset is where the transfer was addressed, so a
// failed restore can report exactly how far it got.
type IOError struct {
	Op     string // "read", "write" or "erase"
	Offset uint64
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("flash %s at offset 0x%x failed after retries: %v", e.Op, e.Offset, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
