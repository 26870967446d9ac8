package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"flashvault/bid"
	"flashvault/datamodel/backup"
	"flashvault/digest"

	log "github.com/sirupsen/logrus"
)

// BackupFull captures the entire declared flash range into a new artifact.
func (e *Engine) BackupFull(ctx context.Context) (*backup.Metadata, error) {
	info, err := e.session.ChipInfo(ctx)
	if err != nil {
		return nil, err
	}

	regions := []backup.Region{{Offset: 0, Length: info.FlashSize}}
	return e.backup(ctx, bid.KindFull, regions)
}

// BackupPartition resolves a named partition and captures it.
func (e *Engine) BackupPartition(ctx context.Context, name string) (*backup.Metadata, error) {
	desc, err := e.table.Resolve(name)
	if err != nil {
		return nil, err
	}

	regions := []backup.Region{{Name: desc.Name, Offset: desc.Offset, Length: desc.Length}}
	return e.backup(ctx, bid.KindPartition, regions)
}

// BackupRange captures an explicit offset/length range, bypassing the named
// table. Name is kept in the metadata as a label only.
func (e *Engine) BackupRange(ctx context.Context, name string, offset uint64, length uint64) (*backup.Metadata, error) {
	regions := []backup.Region{{Name: name, Offset: offset, Length: length}}
	return e.backup(ctx, bid.KindRange, regions)
}

// backup reads the regions sequentially in chunks into a staging file,
// hashing as it streams, then re-reads the staging file to guard against
// silent write corruption before handing it to the catalog. Failures and
// cancellation discard the staging file; nothing partial is ever published.
func (e *Engine) backup(ctx context.Context, kind bid.Kind, regions []backup.Region) (*backup.Metadata, error) {
	info, err := e.session.ChipInfo(ctx)
	if err != nil {
		return nil, err
	}

	// Reject bad ranges before any flash I/O happens
	var total uint64
	for i := range regions {
		r := &regions[i]
		if r.Length == 0 {
			return nil, fmt.Errorf("%w: %s", ErrorEmptyRange, regionLabel(r))
		}
		if r.Offset > info.FlashSize || r.Length > info.FlashSize-r.Offset {
			return nil, fmt.Errorf("%w: %s (flash size 0x%x)", ErrorRangeOutOfBounds, regionLabel(r), info.FlashSize)
		}
		total += r.Length
	}

	tmp, err := e.catalog.TempArtifact()
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	published := false
	defer func() {
		if !published {
			tmp.Close()
			if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
				log.Warnf("Failed to remove staging file %s: %v", tmpPath, err)
			}
		}
	}()

	log.Infof("Backing up %d region(s), %d bytes total, chunk size %d", len(regions), total, e.chunk)

	hasher := digest.NewWriter()
	totalChunks := e.chunkCount(total)
	chunkIdx := 0
	var transferred uint64

	for i := range regions {
		r := &regions[i]
		for off := r.Offset; off < r.End(); {
			// Cancellation is honored at chunk boundaries only
			if err := ctx.Err(); err != nil {
				log.Warnf("Backup cancelled after %d/%d chunks, discarding staging artifact", chunkIdx, totalChunks)
				return nil, err
			}

			n := e.chunk
			if remaining := r.End() - off; remaining < n {
				n = remaining
			}

			data, err := e.session.ReadFlash(ctx, off, n)
			if err != nil {
				return nil, err
			}
			if _, err := tmp.Write(data); err != nil {
				return nil, err
			}
			if _, err := hasher.Write(data); err != nil {
				return nil, err
			}

			off += n
			transferred += n
			chunkIdx++
			e.report(Progress{
				Phase:       "read",
				Chunk:       chunkIdx,
				TotalChunks: totalChunks,
				Bytes:       transferred,
				TotalBytes:  total,
			})
		}
	}

	if err := tmp.Close(); err != nil {
		return nil, err
	}

	streamed := hasher.Sum()

	// Re-read and re-hash the staging file. A mismatch here means the bytes
	// on disk are not the bytes that came off the wire.
	reread, size, err := hashFile(tmpPath)
	if err != nil {
		return nil, err
	}
	if size != total {
		return nil, fmt.Errorf("staging artifact is %d bytes, expected %d", size, total)
	}
	if reread != streamed {
		return nil, &ChecksumMismatchError{Want: streamed, Got: reread}
	}

	id, err := bid.New(kind)
	if err != nil {
		return nil, err
	}

	md := &backup.Metadata{
		ID:            *id,
		Chip:          *info,
		Regions:       regions,
		Checksum:      streamed,
		ByteSize:      total,
		SchemaVersion: backup.SchemaVersion,
		CreatedAt:     time.Now().UTC(),
	}

	if err := e.catalog.Register(md, tmpPath); err != nil {
		return nil, err
	}

	published = true
	return md, nil
}

func hashFile(path string) (digest.Digest, uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return digest.Digest{}, 0, err
	}
	defer f.Close()

	w := digest.NewWriter()
	if _, err := io.Copy(w, f); err != nil {
		return digest.Digest{}, 0, err
	}
	return w.Sum(), w.BytesWritten(), nil
}

func regionLabel(r *backup.Region) string {
	if r.Name != "" {
		return fmt.Sprintf("%s @ 0x%x +0x%x", r.Name, r.Offset, r.Length)
	}
	return fmt.Sprintf("0x%x +0x%x", r.Offset, r.Length)
}
