package engine

import (
	"bytes"
	"context"
	"fmt"

	"flashvault/bid"
	"flashvault/datamodel/backup"
	"flashvault/digest"

	log "github.com/sirupsen/logrus"
)

// The restore state machine is linear: Validate -> Confirm -> Write ->
// Verify -> Done, with Failed reachable from every state. There are no
// cycles and no rollback; flash writes are not transactional hardware.
type restoreState int

const (
	stateValidate restoreState = iota
	stateConfirm
	stateWrite
	stateVerify
	stateDone
	stateFailed
)

func (s restoreState) String() string {
	switch s {
	case stateValidate:
		return "Validate"
	case stateConfirm:
		return "Confirm"
	case stateWrite:
		return "Write"
	case stateVerify:
		return "Verify"
	case stateDone:
		return "Done"
	case stateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// RestoreOptions control the safety gates of a restore.
type RestoreOptions struct {
	// Force downgrades a chip ID mismatch to a warning. It never skips
	// checksum validation.
	Force bool

	// AssumeYes skips the interactive confirmation (non-interactive use).
	AssumeYes bool

	// Confirm is consulted when AssumeYes is false. A nil Confirm with
	// AssumeYes false declines the operation.
	Confirm ConfirmFunc
}

// Restore writes a cataloged artifact back to the device and verifies the
// result by readback. The device is not touched until the artifact has been
// validated and the operation confirmed.
func (e *Engine) Restore(ctx context.Context, id *bid.ID, opts RestoreOptions) error {
	state := stateValidate
	fail := func(err error) error {
		log.Errorf("Restore %s: %s -> %s: %v", id.String(), state, stateFailed, err)
		return err
	}

	// Validate
	log.Infof("Restore %s: %s", id.String(), state)

	md, err := e.catalog.Find(id)
	if err != nil {
		return fail(err)
	}

	data, err := e.catalog.ReadArtifact(id)
	if err != nil {
		return fail(err)
	}
	if got := digest.Compute(data); got != md.Checksum {
		return fail(&ChecksumMismatchError{Want: md.Checksum, Got: got})
	}
	if uint64(len(data)) != md.TotalLength() {
		return fail(fmt.Errorf("artifact is %d bytes but metadata declares %d", len(data), md.TotalLength()))
	}

	info, err := e.session.ChipInfo(ctx)
	if err != nil {
		return fail(err)
	}
	if info.ChipID != md.Chip.ChipID {
		mismatch := &ChipMismatchError{Want: md.Chip.ChipID, Got: info.ChipID}
		if !opts.Force {
			return fail(mismatch)
		}
		log.Warnf("Restore %s: %v, proceeding because force was requested", id.String(), mismatch)
	}

	// Confirm
	state = stateConfirm
	log.Infof("Restore %s: %s", id.String(), state)
	if !opts.AssumeYes {
		if opts.Confirm == nil {
			return fail(ErrConfirmDeclined)
		}
		prompt := fmt.Sprintf("Restore backup %s (%d bytes, %d region(s)) to %s? This overwrites flash",
			id.String(), md.ByteSize, len(md.Regions), info.ChipID)
		ok, err := opts.Confirm(prompt)
		if err != nil {
			return fail(err)
		}
		if !ok {
			return fail(ErrConfirmDeclined)
		}
	}

	// Write, then Verify, region by region
	totalChunks := e.chunkCount(md.TotalLength())
	chunkIdx := 0
	var transferred uint64
	var artifactPos uint64

	for i := range md.Regions {
		r := &md.Regions[i]
		regionBytes := data[artifactPos : artifactPos+r.Length]
		artifactPos += r.Length

		state = stateWrite
		log.Infof("Restore %s: %s %s", id.String(), state, regionLabel(r))
		if err := e.writeRegion(ctx, r, regionBytes, &chunkIdx, totalChunks, &transferred, md.TotalLength()); err != nil {
			log.Errorf("Restore %s: device may be left partially written; flash has no rollback", id.String())
			return fail(err)
		}

		state = stateVerify
		log.Infof("Restore %s: %s %s", id.String(), state, regionLabel(r))
		if err := e.verifyRegion(ctx, r, regionBytes); err != nil {
			return fail(err)
		}
	}

	state = stateDone
	log.Infof("Restore %s: %s (%d bytes across %d region(s))", id.String(), state, md.ByteSize, len(md.Regions))
	return nil
}

// writeRegion pushes one region in chunks using the same chunk/retry policy
// as backup. A chunk failure is fatal and carries the exact offset reached.
func (e *Engine) writeRegion(ctx context.Context, r *backup.Region, src []byte, chunkIdx *int, totalChunks int, transferred *uint64, totalBytes uint64) error {
	for off := uint64(0); off < r.Length; {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := e.chunk
		if remaining := r.Length - off; remaining < n {
			n = remaining
		}

		if err := e.session.WriteFlash(ctx, r.Offset+off, src[off:off+n]); err != nil {
			return err
		}

		off += n
		*transferred += n
		*chunkIdx++
		e.report(Progress{
			Phase:       "write",
			Chunk:       *chunkIdx,
			TotalChunks: totalChunks,
			Bytes:       *transferred,
			TotalBytes:  totalBytes,
		})
	}
	return nil
}

// verifyRegion reads the region back in chunks and compares against the
// artifact bytes, reporting the first divergent flash offset. A digest over
// the full readback acts as the final gate.
func (e *Engine) verifyRegion(ctx context.Context, r *backup.Region, src []byte) error {
	hasher := digest.NewWriter()
	totalChunks := e.chunkCount(r.Length)
	chunkIdx := 0

	for off := uint64(0); off < r.Length; {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := e.chunk
		if remaining := r.Length - off; remaining < n {
			n = remaining
		}

		readback, err := e.session.ReadFlash(ctx, r.Offset+off, n)
		if err != nil {
			return err
		}

		if idx := firstDivergence(src[off:off+n], readback); idx >= 0 {
			return &VerifyError{Offset: r.Offset + off + uint64(idx)}
		}
		hasher.Write(readback)

		off += n
		chunkIdx++
		e.report(Progress{
			Phase:       "verify",
			Chunk:       chunkIdx,
			TotalChunks: totalChunks,
			Bytes:       off,
			TotalBytes:  r.Length,
		})
	}

	if want := digest.Compute(src); hasher.Sum() != want {
		// Should be unreachable if the byte compare passed; kept as the
		// uniform final gate over the whole readback.
		return &VerifyError{Offset: r.Offset}
	}
	return nil
}

func firstDivergence(want []byte, got []byte) int {
	if len(want) != len(got) {
		if len(want) < len(got) {
			return len(want)
		}
		return len(got)
	}
	if bytes.Equal(want, got) {
		return -1
	}
	for i := range want {
		if want[i] != got[i] {
			return i
		}
	}
	return -1
}
