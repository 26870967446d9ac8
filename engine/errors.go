package engine

import (
	"errors"
	"fmt"

	"flashvault/digest"
)

var ErrConfirmDeclined = errors.New("operation not confirmed")
var ErrorEmptyRange = errors.New("requested range is empty")
var ErrorRangeOutOfBounds = errors.New("requested range exceeds flash size")

// ChecksumMismatchError means an artifact's bytes no longer hash to the
// digest they were published with. During backup it indicates silent write
// corruption of the staging file; during restore validation it indicates a
// damaged artifact.
type ChecksumMismatchError struct {
	Want digest.Digest
	Got  digest.Digest
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: want %s, got %s", e.Want, e.Got)
}

// ChipMismatchError means the artifact was captured from a different chip
// than the one on the wire.
type ChipMismatchError struct {
	Want string // chip ID recorded in the metadata
	Got  string // chip ID reported by the live device
}

func (e *ChipMismatchError) Error() string {
	return fmt.Sprintf("chip mismatch: backup was taken from %s, connected device is %s", e.Want, e.Got)
}

// VerifyError is a post-write readback that diverged from the artifact.
// Offset is the first differing flash address. The device holds whatever the
// last successful chunk produced; there is no rollback.
type VerifyError struct {
	Offset uint64
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("restore verification failed: readback diverges at offset 0x%x (device left as written, no rollback)", e.Offset)
}
