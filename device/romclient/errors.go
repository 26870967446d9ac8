package romclient

import (
	"errors"
	"fmt"
)

var ErrNotSynced = errors.New("device did not acknowledge sync")

// FrameError reports a malformed frame on the wire. During sync this usually
// means the device is running application firmware rather than the ROM
// loader; mid-session it means line noise, and the session layer will retry.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("malformed frame: %s", e.Reason)
}

// ProtocolError is a non-OK status returned by the ROM loader for a
// well-formed command.
type ProtocolError struct {
	Op     string
	Status byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s rejected by ROM loader: %s (0x%02x)", e.Op, statusText(e.Status), e.Status)
}

func statusText(status byte) string {
	switch status {
	case StatusOK:
		return "ok"
	case StatusBadChecksum:
		return "frame checksum rejected"
	case StatusBadCommand:
		return "unknown command"
	case StatusBadAddress:
		return "address out of range"
	case StatusFlashFault:
		return "flash operation failed"
	case StatusNotSynced:
		return "not synced"
	default:
		return "unknown status"
	}
}
